// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"sync"

	"github.com/creachadair/taskgroup"
	"go.uber.org/zap"
)

// A Reclaimer runs the cleanup actions attached to collectible cache
// entries. A single background service routine drains a queue of actions
// fed by the garbage collector's cleanup notifications; a panic out of one
// action is contained and logged, and does not terminate the loop.
//
// Most programs use the shared reclaimer returned by DefaultReclaimer.
// Constructing a separate instance is useful in tests, where the loop must
// be stopped to check for goroutine leaks.
type Reclaimer struct {
	queue chan func()
	stop  chan struct{}
	tasks *taskgroup.Group
	log   *zap.Logger

	stopOnce sync.Once
}

// NewReclaimer constructs a reclaimer and starts its service routine. If log
// is nil, logging is discarded. The loop runs until Stop is called; the
// routine blocks on its queue and does not by itself keep the process alive.
func NewReclaimer(log *zap.Logger) *Reclaimer {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reclaimer{
		queue: make(chan func(), 64),
		stop:  make(chan struct{}),
		tasks: taskgroup.New(nil),
		log:   log,
	}
	r.tasks.Go(r.loop)
	return r
}

var defaultReclaim struct {
	once sync.Once
	r    *Reclaimer
}

// DefaultReclaimer returns the shared process-wide reclaimer, starting it on
// first use. The shared reclaimer runs for the life of the process and must
// not be stopped.
func DefaultReclaimer() *Reclaimer {
	defaultReclaim.once.Do(func() { defaultReclaim.r = NewReclaimer(nil) })
	return defaultReclaim.r
}

// Enqueue schedules f to run on the reclaim loop. If the reclaimer has been
// stopped, f is discarded.
func (r *Reclaimer) Enqueue(f func()) {
	select {
	case r.queue <- f:
	case <-r.stop:
	}
}

// Stop terminates the reclaim loop and blocks until it has exited. Actions
// already queued when Stop is called are run before the loop exits; actions
// enqueued afterward are discarded.
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.tasks.Wait()
}

func (r *Reclaimer) loop() error {
	for {
		select {
		case f := <-r.queue:
			r.run(f)
		case <-r.stop:
			for {
				select {
				case f := <-r.queue:
					r.run(f)
				default:
					return nil
				}
			}
		}
	}
}

// run invokes a single cleanup action. A panic out of the action is
// contained so that one failing cleanup cannot take down the loop.
func (r *Reclaimer) run(f func()) {
	defer func() {
		if x := recover(); x != nil {
			runtimeMetrics.reclaimPanics.Add(1)
			r.log.Warn("cleanup action panicked (recovered)", zap.Any("value", x))
		}
	}()
	runtimeMetrics.reclaimRuns.Add(1)
	f()
}

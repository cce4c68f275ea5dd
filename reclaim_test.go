// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/creachadair/carp"
	"github.com/fortytw2/leaktest"
)

func TestReclaimerPanicContained(t *testing.T) {
	defer leaktest.Check(t)()

	r := carp.NewReclaimer(nil)
	defer r.Stop()

	var ran atomic.Bool
	done := make(chan struct{})
	r.Enqueue(func() { panic("boom") })
	r.Enqueue(func() { ran.Store(true); close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cleanup action")
	}
	if !ran.Load() {
		t.Error("the action after a panic did not run")
	}
}

func TestReclaimerStopDrains(t *testing.T) {
	defer leaktest.Check(t)()

	r := carp.NewReclaimer(nil)

	var count atomic.Int32
	for range 10 {
		r.Enqueue(func() { count.Add(1) })
	}
	r.Stop()

	if n := count.Load(); n != 10 {
		t.Errorf("actions run at stop: got %d, want 10", n)
	}

	// Stop is idempotent, and actions enqueued afterward are discarded
	// without blocking.
	r.Stop()
	r.Enqueue(func() { t.Error("action ran after stop") })
}

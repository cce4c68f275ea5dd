// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"errors"
	"sync"

	"github.com/creachadair/carp/schema"
)

// ErrNoModule is the sentinel reported by a ModuleSource to indicate that it
// does not define the requested module. Any other load error indicates a
// descriptor that exists but cannot be used, and surfaces to the caller as a
// *ResourceError.
var ErrNoModule = errors.New("module not defined")

// A ModuleSource provides the module descriptors visible at a single
// resolution scope. Sources are queried at most once per module for outcomes
// that are definitive (the module is present, or definitively absent); a
// load that fails for any other reason is retried on a later lookup.
//
// Implementations must be safe for concurrent use; the scope serializes
// loads of the same module, but distinct modules may load concurrently.
type ModuleSource interface {
	// LoadModule returns the definition of the named module if this source
	// defines it. It reports ErrNoModule if the module is not defined here.
	LoadModule(name Name) (*ModuleDef, error)
}

// A ModuleDef pairs a module's parsed schema with the native representations
// of its types, as produced by the stub compiler. Natives maps unqualified
// type names to their native handles; a type with no required native form
// may be absent from the map.
type ModuleDef struct {
	Schema  *schema.Module
	Natives map[string]any
}

// A ModuleApplication records one scope's knowledge of a module: its parsed
// type table and the native target it was bound to. An application is
// created lazily, at most once per (module, scope) pair, and is immutable
// once created.
type ModuleApplication struct {
	Scope *Scope     // the scope that owns the application
	Def   *ModuleDef // the module definition loaded at that scope
}

// A TypeRecord is the result of resolving a qualified type name.
type TypeRecord struct {
	Type   *schema.Type // the type's schema model
	Native any          // the native representation handle, or nil if none
	Scope  *Scope       // the scope whose module application owns the type
}

// A Scope is one node in an ordered chain of resolution scopes. Each scope
// may define modules through its ModuleSource; resolution searches the chain
// root-first, so an ancestor's definition of a module is authoritative over
// a descendant's.
type Scope struct {
	parent *Scope
	source ModuleSource

	μ    sync.Mutex
	mods map[Name]*moduleSlot
}

// NewScope constructs a scope with the given parent and module source.
// A nil parent makes the scope a root; a nil source makes the scope define
// no modules of its own.
func NewScope(parent *Scope, source ModuleSource) *Scope {
	return &Scope{parent: parent, source: source, mods: make(map[Name]*moduleSlot)}
}

// Parent returns the parent of s, or nil if s is a root scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Resolve resolves the qualified type name to its schema model and native
// representation, searching the scope chain from the root toward s.
//
// Resolve reports a *MissingTypeError if no scope in the chain defines the
// owning module, or if the module is found but does not declare the type;
// the two cases are distinguished by the error's MissingModule flag. It
// reports a *ResourceError if a module descriptor exists but cannot be used.
func (s *Scope) Resolve(typeName Name) (TypeRecord, error) {
	mod, leaf := typeName.Parent(), typeName.Leaf()
	if mod.IsZero() {
		return TypeRecord{}, &MissingTypeError{Name: typeName, Module: mod, MissingModule: true}
	}
	app, err := s.resolveModule(mod)
	if err != nil {
		return TypeRecord{}, err
	}
	if app == nil {
		return TypeRecord{}, &MissingTypeError{Name: typeName, Module: mod, MissingModule: true}
	}
	t := app.Def.Schema.Type(string(leaf))
	if t == nil {
		return TypeRecord{}, &MissingTypeError{Name: typeName, Module: mod}
	}
	runtimeMetrics.typesResolved.Add(1)
	return TypeRecord{Type: t, Native: app.Def.Natives[string(leaf)], Scope: app.Scope}, nil
}

// resolveModule reports the module application for name visible from s.
// Ancestor scopes are consulted before s itself, so the chain is fully
// resolved root-first and an ancestor's result short-circuits the walk
// without touching descendant scopes.
func (s *Scope) resolveModule(name Name) (*ModuleApplication, error) {
	if s.parent != nil {
		app, err := s.parent.resolveModule(name)
		if app != nil || err != nil {
			return app, err
		}
	}
	return s.applyModule(name)
}

// slotState is the memoization state of a (module, scope) pair.
type slotState int

const (
	slotEmpty  slotState = iota // not yet attempted, or last attempt failed
	slotAbsent                  // the scope definitively does not define the module
	slotReady                   // the module application has been created
)

type moduleSlot struct {
	μ     sync.Mutex
	state slotState
	app   *ModuleApplication
}

func (s *Scope) slot(name Name) *moduleSlot {
	s.μ.Lock()
	defer s.μ.Unlock()
	sl, ok := s.mods[name]
	if !ok {
		sl = new(moduleSlot)
		s.mods[name] = sl
	}
	return sl
}

// applyModule loads the module definition visible at s itself, if any,
// memoizing the application. The load is single-flight: concurrent callers
// for the same module serialize on the slot, and at most one load occurs for
// a module that is present or definitively absent. A load that fails with
// anything other than ErrNoModule is not memoized, so a later lookup retries
// it; while the condition persists such lookups fail identically.
func (s *Scope) applyModule(name Name) (*ModuleApplication, error) {
	sl := s.slot(name)
	sl.μ.Lock()
	defer sl.μ.Unlock()

	switch sl.state {
	case slotReady:
		return sl.app, nil
	case slotAbsent:
		return nil, nil
	}

	if s.source == nil {
		sl.state = slotAbsent
		return nil, nil
	}
	def, err := s.source.LoadModule(name)
	if errors.Is(err, ErrNoModule) {
		sl.state = slotAbsent
		return nil, nil
	} else if err != nil {
		runtimeMetrics.moduleLoadsFailed.Add(1)
		return nil, &ResourceError{Module: name, Err: err}
	}

	runtimeMetrics.moduleLoads.Add(1)
	sl.app = &ModuleApplication{Scope: s, Def: def}
	sl.state = slotReady
	return sl.app, nil
}

// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/creachadair/carp"
	"github.com/creachadair/carp/schema"
	"github.com/creachadair/taskgroup"
)

// A countingSource is a ModuleSource over a fixed table that counts how many
// times each module was loaded, and can be made to fail on demand.
type countingSource struct {
	μ     sync.Mutex
	mods  map[carp.Name]*carp.ModuleDef
	fail  map[carp.Name]error
	loads map[carp.Name]int
}

func newCountingSource(mods map[carp.Name]*carp.ModuleDef) *countingSource {
	return &countingSource{
		mods:  mods,
		fail:  make(map[carp.Name]error),
		loads: make(map[carp.Name]int),
	}
}

func (s *countingSource) LoadModule(name carp.Name) (*carp.ModuleDef, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.loads[name]++
	if err := s.fail[name]; err != nil {
		return nil, err
	}
	def, ok := s.mods[name]
	if !ok {
		return nil, carp.ErrNoModule
	}
	return def, nil
}

func (s *countingSource) loadCount(name carp.Name) int {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.loads[name]
}

func (s *countingSource) setFail(name carp.Name, err error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if err == nil {
		delete(s.fail, name)
	} else {
		s.fail[name] = err
	}
}

func testModule() *carp.ModuleDef {
	return &carp.ModuleDef{
		Schema: &schema.Module{Name: "m", Types: []*schema.Type{
			{Name: "Foo", Kind: schema.Data},
		}},
		Natives: map[string]any{"Foo": "native-foo"},
	}
}

func TestResolutionOrdering(t *testing.T) {
	// A three-scope chain root → mid → leaf where only the root defines
	// module m. Resolving from the leaf must succeed, the module must load
	// exactly once under concurrent callers, and the descendant scopes must
	// not be consulted for m at all.
	rootSrc := newCountingSource(map[carp.Name]*carp.ModuleDef{"m": testModule()})
	midSrc := newCountingSource(nil)
	leafSrc := newCountingSource(nil)

	root := carp.NewScope(nil, rootSrc)
	mid := carp.NewScope(root, midSrc)
	leaf := carp.NewScope(mid, leafSrc)

	const numCallers = 16

	g := taskgroup.New(nil)
	recs := make([]carp.TypeRecord, numCallers)
	errs := make([]error, numCallers)
	for i := range numCallers {
		g.Go(func() error {
			recs[i], errs[i] = leaf.Resolve("m.Foo")
			return nil
		})
	}
	g.Wait()

	for i := range numCallers {
		if errs[i] != nil {
			t.Fatalf("Resolve m.Foo [%d]: unexpected error: %v", i, errs[i])
		}
		if recs[i].Type == nil || recs[i].Type.Name != "Foo" {
			t.Errorf("Resolve m.Foo [%d]: got type %+v, want Foo", i, recs[i].Type)
		}
		if recs[i].Native != "native-foo" {
			t.Errorf("Resolve m.Foo [%d]: got native %v, want native-foo", i, recs[i].Native)
		}
		if recs[i].Scope != root {
			t.Errorf("Resolve m.Foo [%d]: owning scope is not the root", i)
		}
	}
	if n := rootSrc.loadCount("m"); n != 1 {
		t.Errorf("Root loaded module m %d times, want 1", n)
	}
	if n := midSrc.loadCount("m"); n != 0 {
		t.Errorf("Mid loaded module m %d times, want 0", n)
	}
	if n := leafSrc.loadCount("m"); n != 0 {
		t.Errorf("Leaf loaded module m %d times, want 0", n)
	}
}

func TestMissingModuleVsMissingType(t *testing.T) {
	src := newCountingSource(map[carp.Name]*carp.ModuleDef{"m": testModule()})
	scope := carp.NewScope(nil, src)

	t.Run("TypeMissing", func(t *testing.T) {
		_, err := scope.Resolve("m.Bar")
		var mte *carp.MissingTypeError
		if !errors.As(err, &mte) {
			t.Fatalf("Resolve m.Bar: got %v, want MissingTypeError", err)
		}
		if mte.MissingModule {
			t.Error("Resolve m.Bar: module reported missing, but m exists")
		}
		if mte.Module != "m" {
			t.Errorf("Resolve m.Bar: module %q, want m", mte.Module)
		}
	})

	t.Run("ModuleMissing", func(t *testing.T) {
		_, err := scope.Resolve("nope.Foo")
		var mte *carp.MissingTypeError
		if !errors.As(err, &mte) {
			t.Fatalf("Resolve nope.Foo: got %v, want MissingTypeError", err)
		}
		if !mte.MissingModule {
			t.Error("Resolve nope.Foo: module not reported missing")
		}
	})

	t.Run("Unqualified", func(t *testing.T) {
		_, err := scope.Resolve("Foo")
		var mte *carp.MissingTypeError
		if !errors.As(err, &mte) {
			t.Fatalf("Resolve Foo: got %v, want MissingTypeError", err)
		} else if !mte.MissingModule {
			t.Error("Resolve Foo: module not reported missing")
		}
	})
}

func TestResourceErrorRetry(t *testing.T) {
	src := newCountingSource(map[carp.Name]*carp.ModuleDef{"m": testModule()})
	scope := carp.NewScope(nil, src)

	broken := errors.New("descriptor unreadable")
	src.setFail("m", broken)

	// While the descriptor is unreadable, lookups fail identically with a
	// ResourceError preserving the cause.
	for range 2 {
		_, err := scope.Resolve("m.Foo")
		var re *carp.ResourceError
		if !errors.As(err, &re) {
			t.Fatalf("Resolve m.Foo: got %v, want ResourceError", err)
		}
		if !errors.Is(err, broken) {
			t.Errorf("Resolve m.Foo: error does not preserve cause: %v", err)
		}
	}
	if n := src.loadCount("m"); n != 2 {
		t.Errorf("Load count after two failing lookups: got %d, want 2", n)
	}

	// The failure is not memoized: once the descriptor is readable again, a
	// retried lookup succeeds.
	src.setFail("m", nil)
	rec, err := scope.Resolve("m.Foo")
	if err != nil {
		t.Fatalf("Resolve m.Foo after fix: unexpected error: %v", err)
	}
	if rec.Type.Name != "Foo" {
		t.Errorf("Resolve m.Foo after fix: got type %q, want Foo", rec.Type.Name)
	}

	// Success is memoized; no further loads occur.
	if _, err := scope.Resolve("m.Foo"); err != nil {
		t.Fatalf("Resolve m.Foo (cached): unexpected error: %v", err)
	}
	if n := src.loadCount("m"); n != 3 {
		t.Errorf("Load count after success: got %d, want 3", n)
	}
}

func TestAbsenceIsMemoized(t *testing.T) {
	src := newCountingSource(nil)
	scope := carp.NewScope(nil, src)

	for range 3 {
		_, err := scope.Resolve("ghost.Foo")
		var mte *carp.MissingTypeError
		if !errors.As(err, &mte) || !mte.MissingModule {
			t.Fatalf("Resolve ghost.Foo: got %v, want missing module", err)
		}
	}
	if n := src.loadCount("ghost"); n != 1 {
		t.Errorf("Load count for absent module: got %d, want 1", n)
	}
}

func TestAncestorResourceErrorWins(t *testing.T) {
	// A broken descriptor at the root must surface even when a descendant
	// scope could define the module: the root is authoritative.
	rootSrc := newCountingSource(map[carp.Name]*carp.ModuleDef{"m": testModule()})
	rootSrc.setFail("m", errors.New("bad descriptor"))
	leafSrc := newCountingSource(map[carp.Name]*carp.ModuleDef{"m": testModule()})

	root := carp.NewScope(nil, rootSrc)
	leaf := carp.NewScope(root, leafSrc)

	_, err := leaf.Resolve("m.Foo")
	var re *carp.ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("Resolve m.Foo: got %v, want ResourceError", err)
	}
	if n := leafSrc.loadCount("m"); n != 0 {
		t.Errorf("Leaf consulted for m %d times, want 0", n)
	}
}

func TestLeafDefinitionApplies(t *testing.T) {
	// When no ancestor defines the module, the requesting scope's own
	// definition is used, and the owning scope is recorded.
	root := carp.NewScope(nil, newCountingSource(nil))
	leafSrc := newCountingSource(map[carp.Name]*carp.ModuleDef{"m": testModule()})
	leaf := carp.NewScope(root, leafSrc)

	rec, err := leaf.Resolve("m.Foo")
	if err != nil {
		t.Fatalf("Resolve m.Foo: unexpected error: %v", err)
	}
	if rec.Scope != leaf {
		t.Error("Resolve m.Foo: owning scope is not the leaf")
	}
}

// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"testing"
	"weak"

	"github.com/creachadair/carp/schema"
)

// emptyInterface returns a minimal valid interface type declaring no calls.
func emptyInterface(name Name) *InterfaceType {
	return &InterfaceType{
		Name:    name,
		Schema:  &schema.Type{Name: string(name.Leaf()), Kind: schema.Interface},
		Binding: &Binding{},
	}
}

func TestProxyCacheDrop(t *testing.T) {
	rec := NewReclaimer(nil)
	defer rec.Stop()

	c := newProxyCache(rec)
	itf := emptyInterface("chat.Room")
	key := proxyKey{itf: itf, ep: "https://chat.example.com/room/5"}

	p1 := c.get(key, func() *Proxy { return &Proxy{itf: itf, endpoint: key.ep} })

	// A stale cleanup, carrying the weak reference of an already replaced
	// instance, must not evict the live entry.
	stale := weak.Make(&Proxy{itf: itf, endpoint: key.ep})
	c.drop(key, stale)
	if got := c.get(key, func() *Proxy {
		t.Error("get rebuilt a proxy that should still be cached")
		return &Proxy{itf: itf, endpoint: key.ep}
	}); got != p1 {
		t.Error("get after stale drop returned a distinct instance")
	}
	if ep, ok := c.location(itf, p1); !ok || ep != key.ep {
		t.Errorf("location after stale drop: got (%q, %v), want (%q, true)", ep, ok, key.ep)
	}

	// Dropping the live entry clears both directions, and the next lookup
	// constructs a fresh instance.
	c.drop(key, weak.Make(p1))
	if _, ok := c.location(itf, p1); ok {
		t.Error("location after drop still reports the proxy")
	}
	p2 := c.get(key, func() *Proxy { return &Proxy{itf: itf, endpoint: key.ep} })
	if p2 == p1 {
		t.Error("get after drop returned the dropped instance")
	}
}

func TestTranslatorCacheDrop(t *testing.T) {
	rec := NewReclaimer(nil)
	defer rec.Stop()

	c := newTranslatorCache(rec)
	itf := emptyInterface("chat.Room")

	t1 := c.get(itf)
	if t2 := c.get(itf); t2 != t1 {
		t.Error("get returned a distinct translator for a cached type")
	}

	stale := weak.Make(NewTranslator(itf))
	c.drop(itf, stale)
	if t2 := c.get(itf); t2 != t1 {
		t.Error("get after stale drop returned a distinct translator")
	}

	c.drop(itf, weak.Make(t1))
	if t2 := c.get(itf); t2 == t1 {
		t.Error("get after drop returned the dropped translator")
	}
}

func TestBarePlans(t *testing.T) {
	// Only a call whose single declared variant has no fields is marked as
	// accepting an empty reply body.
	itf := &InterfaceType{
		Name: "t.T",
		Schema: &schema.Type{Name: "T", Kind: schema.Interface, Calls: []*schema.Call{
			{Name: "bare", Variants: []*schema.Variant{{Name: "done"}}},
			{Name: "fielded", Variants: []*schema.Variant{
				{Name: "done", Fields: []schema.Field{{Name: "n", Type: "int"}}},
			}},
			{Name: "multi", Variants: []*schema.Variant{{Name: "yes"}, {Name: "no"}}},
		}},
		Binding: &Binding{Calls: map[string]*CallBinding{
			"bare": {Variants: map[string]*VariantBinding{
				"done": {Zero: func() any { return nil }},
			}},
			"fielded": {Variants: map[string]*VariantBinding{
				"done": {
					Zero: func() any { return 0 },
					New:  func() any { return new(int) },
					Finish: func(b any) any { return *b.(*int) },
					Fields: map[string]FieldBinding{
						"n": {Decode: func(v any, _ *DecodingContext) (any, error) { return v, nil },
							Set: func(b, v any) { *b.(*int) = v.(int) }},
					},
				},
			}},
			"multi": {Variants: map[string]*VariantBinding{
				"yes": {Zero: func() any { return true }},
				"no":  {Zero: func() any { return false }},
			}},
		}},
	}
	tr := NewTranslator(itf)
	if tr.plans["bare"].bare == nil {
		t.Error("call bare: not marked for empty replies")
	}
	if tr.plans["fielded"].bare != nil {
		t.Error("call fielded: wrongly marked for empty replies")
	}
	if tr.plans["multi"].bare != nil {
		t.Error("call multi: wrongly marked for empty replies")
	}
}

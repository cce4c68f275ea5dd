// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// A Proxy is a local stand-in for a remote receiver of one interface type,
// bound to exactly one endpoint. Proxy equality is reference identity. The
// per-call invocation table is built once, when the proxy is created.
type Proxy struct {
	itf      *InterfaceType
	endpoint Endpoint
	calls    map[string]callFunc
}

// Type returns the interface type of p.
func (p *Proxy) Type() *InterfaceType { return p.itf }

// Endpoint returns the endpoint to which p is bound.
func (p *Proxy) Endpoint() Endpoint { return p.endpoint }

// Call invokes the named call on the remote receiver with the given
// arguments, keyed by parameter name, and blocks until the exchange
// completes or ctx ends. Errors reported by Call are drawn from the CARP
// error taxonomy; see the package documentation.
func (p *Proxy) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	fn, ok := p.calls[name]
	if !ok {
		return nil, fmt.Errorf("interface %q declares no call %q", p.itf.Name, name)
	}
	return fn(ctx, args)
}

func (p *Proxy) String() string {
	return fmt.Sprintf("Proxy(%s, %s)", p.itf.Name, p.endpoint)
}

type proxyKey struct {
	itf *InterfaceType
	ep  Endpoint
}

// A proxyCache maintains the two collectible proxy maps: a forward map from
// (interface type, endpoint) to a weak reference on the proxy, and a reverse
// map keyed by proxy identity reporting the endpoint the proxy is bound to.
// All mutation happens under a single lock, shared with the cleanup actions
// run by the reclaimer, so creation and reclamation cannot interleave.
type proxyCache struct {
	reclaim *Reclaimer

	μ   sync.Mutex
	fwd map[proxyKey]weak.Pointer[Proxy]
	rev map[weak.Pointer[Proxy]]proxyKey
}

func newProxyCache(rec *Reclaimer) *proxyCache {
	return &proxyCache{
		reclaim: rec,
		fwd:     make(map[proxyKey]weak.Pointer[Proxy]),
		rev:     make(map[weak.Pointer[Proxy]]proxyKey),
	}
}

// get returns the live proxy cached under key, or installs and returns a new
// one built by build.
func (c *proxyCache) get(key proxyKey, build func() *Proxy) *Proxy {
	c.μ.Lock()
	defer c.μ.Unlock()

	if wp, ok := c.fwd[key]; ok {
		if p := wp.Value(); p != nil {
			return p
		}
		// The referent was reclaimed but its cleanup has not run yet; the
		// entry is replaced here and the stale cleanup will leave the
		// replacement alone.
	}

	p := build()
	wp := weak.Make(p)
	c.fwd[key] = wp
	c.rev[wp] = key
	runtime.AddCleanup(p, func(wp weak.Pointer[Proxy]) {
		c.reclaim.Enqueue(func() { c.drop(key, wp) })
	}, wp)
	runtimeMetrics.proxiesCreated.Add(1)
	runtimeMetrics.proxiesLive.Add(1)
	return p
}

// drop removes the cache entries for a reclaimed proxy. The forward entry is
// removed only if it still refers to the reclaimed instance, so a newer
// proxy installed by a racing creator is left intact.
func (c *proxyCache) drop(key proxyKey, wp weak.Pointer[Proxy]) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if cur, ok := c.fwd[key]; ok && cur == wp {
		delete(c.fwd, key)
	}
	delete(c.rev, wp)
	runtimeMetrics.proxiesLive.Add(-1)
}

// location reports the endpoint recorded for p under itf, if p is a proxy
// this cache produced.
func (c *proxyCache) location(itf *InterfaceType, p *Proxy) (Endpoint, bool) {
	if p == nil {
		return "", false
	}
	c.μ.Lock()
	defer c.μ.Unlock()
	key, ok := c.rev[weak.Make(p)]
	if !ok || key.itf != itf {
		return "", false
	}
	return key.ep, true
}

// A translatorCache memoizes one call translator per interface type. Cached
// entries are collectible: a translator with no strong reference elsewhere
// is reclaimed and rebuilt on the next request.
type translatorCache struct {
	reclaim *Reclaimer

	μ sync.Mutex
	m map[*InterfaceType]weak.Pointer[Translator]
}

func newTranslatorCache(rec *Reclaimer) *translatorCache {
	return &translatorCache{reclaim: rec, m: make(map[*InterfaceType]weak.Pointer[Translator])}
}

func (c *translatorCache) get(itf *InterfaceType) *Translator {
	c.μ.Lock()
	defer c.μ.Unlock()

	if wp, ok := c.m[itf]; ok {
		if t := wp.Value(); t != nil {
			return t
		}
	}

	t := NewTranslator(itf)
	wp := weak.Make(t)
	c.m[itf] = wp
	runtime.AddCleanup(t, func(wp weak.Pointer[Translator]) {
		c.reclaim.Enqueue(func() { c.drop(itf, wp) })
	}, wp)
	return t
}

func (c *translatorCache) drop(itf *InterfaceType, wp weak.Pointer[Translator]) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if cur, ok := c.m[itf]; ok && cur == wp {
		delete(c.m, itf)
	}
}

// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package carp implements the client-side invocation runtime of the CARP
// RPC system.
//
// CARP is schema driven: an interface description compiles to a type model
// and native call stubs, and the runtime carries typed calls over an
// HTTP-based wire protocol, annotating peer identity with certificate
// fingerprints. This package provides type resolution over a chain of
// scopes, the data-driven call translation and wire exchange, the
// collectible proxy and translator caches, and the background reclamation
// loop that empties them.
//
// # Runtimes and proxies
//
// A [Runtime] binds a transport to the caches of the invocation path:
//
//	rt := carp.New(carp.Options{Transport: &transport.HTTP{}})
//
// A [Proxy] is a local stand-in for a remote receiver of one interface
// type, bound to a single endpoint. Obtain one from the runtime:
//
//	p := rt.Proxy(roomType, "https://chat.example.com/room/5")
//	res, err := p.Call(ctx, "say", map[string]any{"msg": "hi"})
//
// Calls block the calling goroutine until the transport exchange completes
// or ctx ends. A successful call reports a [Result]: the response variant
// the peer selected and the variant's decoded native value.
//
// For as long as a strong reference to a proxy exists anywhere, the runtime
// returns the same instance for its (interface type, endpoint) pair. Once
// the proxy becomes unreachable it is reclaimed, its cache entries are
// removed by the background [Reclaimer], and a later request constructs a
// fresh instance.
//
// # Type resolution
//
// A [Scope] is a node in an ordered chain searched for module definitions,
// such as the ancestry of a plugin loader. [Scope.Resolve] resolves a
// qualified type [Name] by walking the chain root-first, so the root's
// definition of a module is authoritative; each scope loads a given module
// at most once, even under concurrent resolution.
//
// # Translators and bindings
//
// An [InterfaceType] pairs an interface's schema with a [Binding]: the
// per-parameter encoders, per-field decoders, and response construction
// hooks produced by the stub compiler. From these the runtime builds a
// [Translator] — the fixed call plan for the interface — once, and caches
// it. Mismatches between a schema and its binding are defects and panic at
// construction.
//
// # Errors
//
// Errors reported by a call are drawn from a fixed taxonomy and propagate
// to the caller unchanged; the runtime never retries:
//
//   - [MissingTypeError]: a type name failed to resolve
//   - [ResourceError]: a module descriptor exists but cannot be used
//   - [MissingEndpointError]: the peer reports the receiver absent
//   - [StatusUpdateError]: the peer rejected a status update, with details
//   - [InternalServerError]: the peer failed internally (opaque id only)
//   - [ProtocolError]: the reply violated the wire contract
//   - [TransportError]: an I/O failure, cause preserved
//   - [CallError]: any other unrecognized outcome
//
// # Metrics
//
// Runtimes maintain a collection of metrics. Use [Runtime.Metrics] to
// obtain an [expvar.Map] with the exported counters, including
// module_loads, types_resolved, calls_out, calls_out_failed,
// translators_built, proxies_created, proxies_live, and reclaims_run.
// Additional metrics may be added in the future.
package carp

// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"context"
	"expvar"
	"fmt"
	"net/url"
	"strconv"

	"github.com/creachadair/carp/fingerprint"
	"github.com/creachadair/carp/transport"
	"github.com/creachadair/carp/wire"
	"go.uber.org/zap"
)

// An Endpoint is an opaque URI naming a remote receiver.
type Endpoint string

// Peer reports the implicit peer identity (host and port) named by e. If e
// names no port, the default port for its scheme is applied.
func (e Endpoint) Peer() (fingerprint.Peer, error) {
	u, err := url.Parse(string(e))
	if err != nil {
		return fingerprint.Peer{}, err
	} else if u.Host == "" {
		return fingerprint.Peer{}, fmt.Errorf("endpoint %q names no host", e)
	}
	var port int
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	} else if u.Scheme == "https" {
		port = 443
	} else if u.Scheme == "http" {
		port = 80
	}
	return fingerprint.Peer{Host: u.Hostname(), Port: port}, nil
}

// A Result is the decoded outcome of a successful call: the name of the
// response variant the peer selected, and the variant's decoded native
// value.
type Result struct {
	Variant string
	Value   any
}

// Options are the settings for constructing a Runtime.
type Options struct {
	// Transport carries wire messages to endpoints. It must be set.
	Transport transport.Client

	// Prints, if non-nil, is consulted when encoding endpoint-valued
	// arguments and is populated opportunistically from the prints carried on
	// responses.
	Prints fingerprint.Repository

	// Reclaimer runs the cleanup actions for the runtime's collectible
	// caches. If nil, the shared process-wide reclaimer is used.
	Reclaimer *Reclaimer

	// Log, if non-nil, receives runtime debug logging.
	Log *zap.Logger
}

// A Runtime carries typed CARP calls over a transport. It owns the two
// collectible caches of the invocation path: the translator cache, mapping
// interface types to compiled call plans, and the proxy cache, mapping
// (interface type, endpoint) pairs to live proxies. Entries of both caches
// vanish automatically once no strong reference to the value remains.
//
// A Runtime is safe for concurrent use by multiple goroutines. Calls block
// the calling goroutine for the duration of the transport exchange.
type Runtime struct {
	transport   transport.Client
	prints      fingerprint.Repository
	log         *zap.Logger
	translators *translatorCache
	proxies     *proxyCache
}

// New constructs a runtime with the given options.
// It panics if no transport is configured.
func New(opts Options) *Runtime {
	if opts.Transport == nil {
		panic("carp: no transport configured")
	}
	rec := opts.Reclaimer
	if rec == nil {
		rec = DefaultReclaimer()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		transport:   opts.Transport,
		prints:      opts.Prints,
		log:         log,
		translators: newTranslatorCache(rec),
		proxies:     newProxyCache(rec),
	}
}

// Metrics returns a metrics map for the runtime. It is safe for the caller
// to add additional metrics to the map. By default, metrics are shared
// globally among all runtimes.
func (r *Runtime) Metrics() *expvar.Map { return runtimeMetrics.emap }

// Translator returns the call translator for itf, rebuilding it if no
// previously cached translator is still live.
func (r *Runtime) Translator(itf *InterfaceType) *Translator {
	return r.translators.get(itf)
}

// Proxy returns the proxy for the given interface type and endpoint,
// constructing one if no live proxy exists. As long as a strong reference to
// a returned proxy exists anywhere, further calls with the same arguments
// return the same instance; after the instance is reclaimed, a later call
// may construct a distinct one.
func (r *Runtime) Proxy(itf *InterfaceType, ep Endpoint) *Proxy {
	return r.proxies.get(proxyKey{itf: itf, ep: ep}, func() *Proxy {
		t := r.translators.get(itf)
		return &Proxy{itf: itf, endpoint: ep, calls: t.bind(r, ep)}
	})
}

// Location reports the endpoint to which p is bound, if p is a live proxy
// produced by this runtime for the given interface type. It is used to
// re-export a previously received proxy as an endpoint reference.
func (r *Runtime) Location(itf *InterfaceType, p *Proxy) (Endpoint, bool) {
	return r.proxies.location(itf, p)
}

// invoke performs one wire exchange for plan against ep: it encodes args in
// declared order, posts the request, and maps the transport outcome onto a
// result or the error taxonomy.
func (r *Runtime) invoke(ctx context.Context, ep Endpoint, plan *callPlan, args map[string]any) (_ *Result, err error) {
	runtimeMetrics.callsOut.Add(1)
	defer func() {
		if err != nil {
			runtimeMetrics.callsOutErr.Add(1)
		}
	}()

	ectx := &EncodingContext{prints: fingerprint.NewTable(), repo: r.prints}
	params := wire.Object{}
	for _, op := range plan.out {
		v, ok := args[op.Name]
		if !ok {
			return nil, fmt.Errorf("call %q: missing argument %q", plan.name, op.Name)
		}
		wv, err := op.Encode(v, ectx)
		if err != nil {
			return nil, fmt.Errorf("call %q: encode argument %q: %w", plan.name, op.Name, err)
		}
		params[op.Name] = wv
	}
	req := &wire.Request{Type: plan.name, Params: params, Prints: ectx.prints.WireEntries()}

	rep, err := r.transport.Post(ctx, string(ep), req)
	if err != nil {
		return nil, &TransportError{Endpoint: ep, Err: err}
	}

	switch rep.Outcome {
	case transport.Success:
		return r.decodeReply(ep, plan, rep)

	case transport.NoBody:
		// An empty reply body stands for a response only when the call's
		// single declared variant carries no fields.
		if plan.bare == nil {
			return nil, &CallError{
				Endpoint: ep, Call: plan.name, Status: rep.Status,
				Message: "unexpected empty response body",
			}
		}
		return &Result{Variant: plan.bare.Variant, Value: plan.bare.zero()}, nil

	case transport.NotFound:
		return nil, &MissingEndpointError{Endpoint: ep}

	case transport.Unprocessable:
		v, err := wire.Parse(rep.ContentType, rep.Body)
		if err != nil {
			return nil, &ProtocolError{Endpoint: ep, Err: err}
		}
		params, msg, err := wire.DecodeStatusError(v)
		if err != nil {
			return nil, &ProtocolError{Endpoint: ep, Err: err}
		}
		return nil, &StatusUpdateError{Params: params, Message: msg}

	case transport.Internal:
		v, err := wire.Parse(rep.ContentType, rep.Body)
		if err != nil {
			return nil, &ProtocolError{Endpoint: ep, Err: err}
		}
		id, err := wire.DecodeErrorID(v)
		if err != nil {
			return nil, &ProtocolError{Endpoint: ep, Err: err}
		}
		return nil, &InternalServerError{ID: id}

	default:
		return nil, &CallError{Endpoint: ep, Call: plan.name, Status: rep.Status}
	}
}

// decodeReply decodes a success reply body: the response message, its print
// table, and the selected variant's native value.
func (r *Runtime) decodeReply(ep Endpoint, plan *callPlan, rep *transport.Reply) (*Result, error) {
	v, err := wire.Parse(rep.ContentType, rep.Body)
	if err != nil {
		return nil, &ProtocolError{Endpoint: ep, Err: err}
	}
	rsp, err := wire.DecodeResponse(v)
	if err != nil {
		return nil, &ProtocolError{Endpoint: ep, Err: err}
	}

	// Record the piggy-backed prints opportunistically. This must not block
	// or fail the call.
	tbl := fingerprint.TableFromWire(rsp.Prints)
	if r.prints != nil {
		for _, e := range rsp.Prints {
			r.prints.Record(fingerprint.Peer{Host: e.Host, Port: e.Port},
				fingerprint.Fingerprint{Algo: e.Algo, Digest: e.Val})
		}
	}

	dec, ok := plan.variants[rsp.Type]
	if !ok {
		return nil, &ProtocolError{Endpoint: ep,
			Err: fmt.Errorf("call %q: undeclared response variant %q", plan.name, rsp.Type)}
	}
	val, err := dec.decode(rsp.Params, &DecodingContext{prints: tbl, rt: r})
	if err != nil {
		return nil, &ProtocolError{Endpoint: ep, Err: err}
	}
	return &Result{Variant: rsp.Type, Value: val}, nil
}

// ReferenceEncoder returns an encoder for endpoint-valued arguments of
// interface type itf. The value may be an Endpoint, or a *Proxy produced by
// this runtime, which is re-exported as its bound endpoint via reverse
// lookup. Encoding records the argument's peer fingerprint in the per-call
// print table when the runtime's repository knows one.
func (r *Runtime) ReferenceEncoder(itf *InterfaceType) Encoder {
	return func(v any, ctx *EncodingContext) (wire.Value, error) {
		var ep Endpoint
		switch t := v.(type) {
		case Endpoint:
			ep = t
		case *Proxy:
			loc, ok := r.Location(itf, t)
			if !ok {
				return nil, fmt.Errorf("proxy is not registered for interface %q", itf.Name)
			}
			ep = loc
		default:
			return nil, fmt.Errorf("cannot encode %T as an endpoint reference", v)
		}
		if p, err := ep.Peer(); err == nil {
			ctx.NotePeer(p)
		}
		return string(ep), nil
	}
}

// ReferenceDecoder returns a decoder for endpoint-valued results of
// interface type itf. The decoded value is a *Proxy for the referenced
// endpoint, materialized through the proxy cache.
func (r *Runtime) ReferenceDecoder(itf *InterfaceType) Decoder {
	return func(v wire.Value, ctx *DecodingContext) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("endpoint reference is not a string (%T)", v)
		}
		return r.Proxy(itf, Endpoint(s)), nil
	}
}

// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"context"
	"fmt"

	"github.com/creachadair/carp/fingerprint"
	"github.com/creachadair/carp/schema"
	"github.com/creachadair/carp/wire"
)

// An Encoder converts a native value into a wire value. Encoders are
// supplied per schema type by generated stub code; the runtime consumes them
// without reflection.
type Encoder func(v any, ctx *EncodingContext) (wire.Value, error)

// A Decoder converts a wire value into a native value.
type Decoder func(v wire.Value, ctx *DecodingContext) (any, error)

// An EncodingContext carries the per-call state available to encoders. Its
// fingerprint table accumulates the peer prints recorded while encoding
// endpoint-valued arguments, and is sent with the request. A context is
// constructed fresh for each invocation and is not shared across calls.
type EncodingContext struct {
	prints *fingerprint.Table
	repo   fingerprint.Repository
}

// RecordPrint records the fingerprint of peer p in the per-call table.
func (c *EncodingContext) RecordPrint(p fingerprint.Peer, f fingerprint.Fingerprint) {
	c.prints.Set(p, f)
}

// NotePeer records the known fingerprint of peer p in the per-call table, if
// the runtime's repository has one. Otherwise it does nothing.
func (c *EncodingContext) NotePeer(p fingerprint.Peer) {
	if c.repo == nil {
		return
	}
	if f, ok := c.repo.Lookup(p); ok {
		c.prints.Set(p, f)
	}
}

// A DecodingContext carries the per-call state available to decoders: the
// peer fingerprint table decoded from the response, and access to the
// runtime so that returned endpoint references can be materialized as
// proxies.
type DecodingContext struct {
	prints *fingerprint.Table
	rt     *Runtime
}

// Print reports the fingerprint the response carried for peer p, if any.
func (c *DecodingContext) Print(p fingerprint.Peer) (fingerprint.Fingerprint, bool) {
	return c.prints.Get(p)
}

// Runtime returns the runtime on whose behalf the value is being decoded.
func (c *DecodingContext) Runtime() *Runtime { return c.rt }

// An InterfaceType pairs an interface's schema with its native binding.
// Generated stub code constructs one InterfaceType per interface; the
// runtime caches translators and proxies by InterfaceType identity.
type InterfaceType struct {
	Name    Name         // the qualified name of the interface type
	Schema  *schema.Type // the interface's schema, Kind == schema.Interface
	Binding *Binding     // the native glue for the interface
}

// A Binding supplies the native glue for one interface type: an encoder per
// declared parameter, and construction hooks and field decoders per response
// variant. A binding is data, not reflection: stubs populate it with direct
// accessor functions.
type Binding struct {
	Calls map[string]*CallBinding // keyed by call name
}

// A CallBinding is the native glue for a single call.
type CallBinding struct {
	Params   map[string]Encoder         // keyed by parameter name
	Variants map[string]*VariantBinding // keyed by variant name
}

// A VariantBinding is the native glue for one response variant. Decoding
// accumulates fields into a builder obtained from New and sealed by Finish;
// a response that touches no field is represented by Zero without allocating
// a builder at all.
type VariantBinding struct {
	Zero   func() any              // the canonical value with no fields set
	New    func() any              // construct a fresh builder
	Finish func(builder any) any   // seal the builder into the variant value
	Fields map[string]FieldBinding // keyed by field name
}

// A FieldBinding decodes one response field and assigns it to a builder.
type FieldBinding struct {
	Decode Decoder
	Set    func(builder, value any)
}

// An OutParam is one slot of a call's ordered argument list.
type OutParam struct {
	Name   string
	Encode Encoder
}

// An InParam is one slot of a response variant's ordered field list.
type InParam struct {
	Name   string
	Decode Decoder
	Set    func(builder, value any)
}

// A ResponseDecoder reconstructs the native value of one response variant
// from its encoded fields.
type ResponseDecoder struct {
	Variant string    // the variant name
	Fields  []InParam // declared fields, in declaration order

	zero   func() any
	build  func() any
	finish func(any) any
}

// decode rebuilds the variant's native value from params. Declared fields
// absent from params are skipped. If no field is present, the variant's zero
// value is returned and no builder is allocated.
func (d *ResponseDecoder) decode(params wire.Object, ctx *DecodingContext) (any, error) {
	var b any
	for _, f := range d.Fields {
		wv, ok := params[f.Name]
		if !ok {
			continue
		}
		v, err := f.Decode(wv, ctx)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if b == nil {
			b = d.build()
		}
		f.Set(b, v)
	}
	if b == nil {
		return d.zero(), nil
	}
	return d.finish(b), nil
}

// A Translator is the compiled call plan for one interface type: for each
// call, the ordered argument encoder list and the table of response variant
// decoders. A translator is immutable after construction and is shared by
// every proxy of its interface type.
type Translator struct {
	itf   *InterfaceType
	plans map[string]*callPlan
}

type callPlan struct {
	name     string
	out      []OutParam
	variants map[string]*ResponseDecoder

	// bare is set iff the call declares exactly one response variant and that
	// variant declares no fields; only such calls accept an empty reply body.
	bare *ResponseDecoder
}

// NewTranslator builds the call plan for itf by walking its schema in
// declaration order and drawing codecs from its binding.
//
// A mismatch between the schema and the binding — a call, parameter, field,
// or response variant present on one side and missing from the other — is a
// construction defect: NewTranslator panics rather than deferring the
// failure to call time.
func NewTranslator(itf *InterfaceType) *Translator {
	if itf.Schema == nil || itf.Schema.Kind != schema.Interface {
		panic(fmt.Sprintf("carp: %q is not an interface type", itf.Name))
	} else if itf.Binding == nil {
		panic(fmt.Sprintf("carp: interface %q has no binding", itf.Name))
	}

	plans := make(map[string]*callPlan, len(itf.Schema.Calls))
	for _, call := range itf.Schema.Calls {
		cb, ok := itf.Binding.Calls[call.Name]
		if !ok {
			panic(fmt.Sprintf("carp: no binding for call %q of %q", call.Name, itf.Name))
		}
		plan := &callPlan{
			name:     call.Name,
			variants: make(map[string]*ResponseDecoder, len(call.Variants)),
		}
		for _, p := range call.Params {
			enc, ok := cb.Params[p.Name]
			if !ok {
				panic(fmt.Sprintf("carp: no encoder for parameter %q of call %q", p.Name, call.Name))
			}
			plan.out = append(plan.out, OutParam{Name: p.Name, Encode: enc})
		}
		for name := range cb.Variants {
			if call.Variant(name) == nil {
				panic(fmt.Sprintf("carp: binding of call %q names unknown response variant %q", call.Name, name))
			}
		}
		for _, v := range call.Variants {
			vb, ok := cb.Variants[v.Name]
			if !ok {
				panic(fmt.Sprintf("carp: no binding for response variant %q of call %q", v.Name, call.Name))
			}
			rd := &ResponseDecoder{
				Variant: v.Name,
				zero:    vb.Zero,
				build:   vb.New,
				finish:  vb.Finish,
			}
			for _, f := range v.Fields {
				fb, ok := vb.Fields[f.Name]
				if !ok {
					panic(fmt.Sprintf("carp: no decoder for field %q of variant %q of call %q",
						f.Name, v.Name, call.Name))
				}
				rd.Fields = append(rd.Fields, InParam{Name: f.Name, Decode: fb.Decode, Set: fb.Set})
			}
			plan.variants[v.Name] = rd
		}
		if len(call.Variants) == 1 && len(call.Variants[0].Fields) == 0 {
			plan.bare = plan.variants[call.Variants[0].Name]
		}
		plans[call.Name] = plan
	}
	runtimeMetrics.translatorsBuilt.Add(1)
	return &Translator{itf: itf, plans: plans}
}

// Type returns the interface type the translator was built for.
func (t *Translator) Type() *InterfaceType { return t.itf }

type callFunc func(ctx context.Context, args map[string]any) (*Result, error)

// bind constructs the per-call invocation table for ep: one closure per
// declared call, each capturing the endpoint and its call plan.
func (t *Translator) bind(rt *Runtime, ep Endpoint) map[string]callFunc {
	calls := make(map[string]callFunc, len(t.plans))
	for name, plan := range t.plans {
		calls[name] = func(ctx context.Context, args map[string]any) (*Result, error) {
			return rt.invoke(ctx, ep, plan, args)
		}
	}
	return calls
}

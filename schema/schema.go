// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package schema defines the type model consumed by the CARP invocation
// runtime: modules of named types, and interface types comprising an ordered
// list of calls, each with an ordered parameter list and a set of named
// response variants with ordered field lists.
//
// Values of these types are ordinarily produced by the CARP schema compiler.
// The runtime treats them as immutable after construction; it is not safe to
// modify a schema value that is shared with a running runtime.
package schema

import "fmt"

// A Kind describes the basic classification of a schema type.
type Kind int

const (
	Data      Kind = iota // a plain data type (struct, enum, scalar)
	Interface             // a callable interface type
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case Interface:
		return "interface"
	default:
		return fmt.Sprintf("kind %d", int(k))
	}
}

// A Module is a named group of schema type definitions. The order of the
// Types slice is the order of declaration in the schema source.
type Module struct {
	Name  string  // the qualified module name, e.g. "org.example.chat"
	Types []*Type // the types declared by the module, in declaration order
}

// Type returns the type declared in m under the given unqualified name, or
// nil if no such type is declared.
func (m *Module) Type(name string) *Type {
	for _, t := range m.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// A Type is a single named schema type. For Kind == Interface, the Calls
// field carries the interface description; otherwise it is nil.
type Type struct {
	Name  string  // the unqualified type name, e.g. "Room"
	Kind  Kind    // the basic classification of the type
	Calls []*Call // for interface types, the declared calls in order
}

// Call returns the call declared in t under the given name, or nil.
func (t *Type) Call(name string) *Call {
	for _, c := range t.Calls {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// A Call is one operation of an interface type: an ordered parameter list and
// one or more named response variants.
type Call struct {
	Name     string     // the call name as it appears on the wire ("req-type")
	Params   []Param    // declared parameters, in declaration order
	Variants []*Variant // declared response variants
}

// Variant returns the response variant declared in c under the given name,
// or nil.
func (c *Call) Variant(name string) *Variant {
	for _, v := range c.Variants {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// A Param is a single declared call parameter.
type Param struct {
	Name string // the parameter name as it appears on the wire
	Type string // the qualified name of the parameter's schema type
}

// A Variant is a single named response alternative of a call. A variant with
// no fields denotes a bare acknowledgement.
type Variant struct {
	Name   string  // the variant name as it appears on the wire ("rsp-type")
	Fields []Field // declared fields, in declaration order
}

// A Field is a single declared response field.
type Field struct {
	Name string // the field name as it appears on the wire
	Type string // the qualified name of the field's schema type
}

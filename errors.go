// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"fmt"

	"github.com/creachadair/mds/value"
)

// MissingTypeError is reported when a qualified type name fails to resolve.
// The MissingModule flag distinguishes "no scope in the chain defines the
// owning module" from "the module exists but does not declare the type".
type MissingTypeError struct {
	Name          Name // the type name that failed to resolve
	Module        Name // the name of the owning module
	MissingModule bool // whether the module itself was not found
}

// Error satisfies the error interface.
func (e *MissingTypeError) Error() string {
	return fmt.Sprintf("type %q: %s not found", e.Name,
		value.Cond(e.MissingModule, "module", "type"))
}

// ResourceError is reported when a module descriptor exists at a scope but
// cannot be read or is malformed. The failure is not memoized: a later
// lookup for the same module retries the load.
type ResourceError struct {
	Module Name  // the module whose descriptor failed to load
	Err    error // the underlying failure
}

// Error satisfies the error interface.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *ResourceError) Unwrap() error { return e.Err }

// MissingEndpointError is reported when the peer reports that the addressed
// receiver has been withdrawn or is unknown.
type MissingEndpointError struct {
	Endpoint Endpoint
}

// Error satisfies the error interface.
func (e *MissingEndpointError) Error() string {
	return fmt.Sprintf("endpoint %q: no such receiver", e.Endpoint)
}

// StatusUpdateError is reported when the peer rejects a caller-supplied
// status update as semantically invalid. Params and Message carry the
// structured rejection reported by the peer, intact.
type StatusUpdateError struct {
	Params  map[string]string
	Message string
}

// Error satisfies the error interface.
func (e *StatusUpdateError) Error() string {
	return fmt.Sprintf("status update rejected: %s", e.Message)
}

// InternalServerError is reported when the peer fails internally. It carries
// only the opaque identifier assigned by the peer; no internal detail is
// exposed.
type InternalServerError struct {
	ID string
}

// Error satisfies the error interface.
func (e *InternalServerError) Error() string {
	return fmt.Sprintf("internal server error [%s]", e.ID)
}

// ProtocolError is reported when a reply violates the wire contract, for
// example a success body that is not a valid message, or a response variant
// the call does not declare.
type ProtocolError struct {
	Endpoint Endpoint
	Err      error
}

// Error satisfies the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation from %q: %v", e.Endpoint, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError wraps a transport-level I/O failure (connect, read, or
// write). The cause is preserved and can be recovered with errors.Unwrap.
type TransportError struct {
	Endpoint Endpoint
	Err      error
}

// Error satisfies the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport to %q: %v", e.Endpoint, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *TransportError) Unwrap() error { return e.Err }

// CallError is reported for a call outcome not covered by the rest of the
// taxonomy: an unrecognized peer status, or an empty success body for a call
// whose response set requires one.
type CallError struct {
	Endpoint Endpoint
	Call     string // the call name
	Status   int    // the underlying protocol status, if any
	Message  string // a description of the failure
}

// Error satisfies the error interface.
func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("call %q to %q: %s", e.Call, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("call %q to %q: unrecognized status %d", e.Call, e.Endpoint, e.Status)
}

// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package wire defines the CARP wire message shape and its serializations.
//
// A wire value is a JSON-like tree: objects are map[string]any, arrays are
// []any, and leaves are strings, numbers, Booleans, or nil. Messages have the
// form:
//
//	Request:  {"req-type": string, "req": object, "prints": array}
//	Response: {"rsp-type": string, "rsp": object, "prints": array}
//
// where each element of "prints" is a print entry:
//
//	{"host": string, "port": int, "print": {"algo": string, "val": [int ...]}}
//
// The canonical serialization is JSON. A compact msgpack serialization is
// also supported, selected by the transport's content-type tag. The decoding
// helpers in this package accept the number representations produced by
// either decoder.
package wire

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Value is a node of the wire tree.
type Value = any

// Object is an object node of the wire tree.
type Object = map[string]Value

// Content type tags understood by Marshal and Parse.
const (
	ContentJSON    = "application/json"
	ContentMsgpack = "application/msgpack"
)

// Marshal serializes the wire value v using the serialization named by the
// content type tag ctype.
func Marshal(ctype string, v Value) ([]byte, error) {
	switch ctype {
	case ContentJSON:
		return json.Marshal(v)
	case ContentMsgpack:
		return msgpack.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported content type %q", ctype)
	}
}

// Parse deserializes data into a wire value using the serialization named by
// the content type tag ctype.
func Parse(ctype string, data []byte) (Value, error) {
	var v Value
	switch ctype {
	case ContentJSON:
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
	case ContentMsgpack:
		if err := msgpack.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid msgpack body: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported content type %q", ctype)
	}
	return v, nil
}

// A Request is the parsed form of a CARP request message.
type Request struct {
	Type   string       // the call name ("req-type")
	Params Object       // encoded parameters by name ("req")
	Prints []PrintEntry // piggy-backed peer fingerprints ("prints")
}

// Encode converts r into a wire value tree.
func (r *Request) Encode() Value {
	params := r.Params
	if params == nil {
		params = Object{}
	}
	return Object{
		"req-type": r.Type,
		"req":      params,
		"prints":   encodePrints(r.Prints),
	}
}

// DecodeRequest decodes a wire value tree as a request message.
func DecodeRequest(v Value) (*Request, error) {
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("request is not an object (%T)", v)
	}
	rtype, ok := obj["req-type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid req-type")
	}
	params, err := fieldObject(obj, "req")
	if err != nil {
		return nil, err
	}
	prints, err := decodePrints(obj["prints"])
	if err != nil {
		return nil, err
	}
	return &Request{Type: rtype, Params: params, Prints: prints}, nil
}

// A Response is the parsed form of a CARP response message.
type Response struct {
	Type   string       // the selected response variant ("rsp-type")
	Params Object       // encoded response fields by name ("rsp")
	Prints []PrintEntry // piggy-backed peer fingerprints ("prints")
}

// Encode converts r into a wire value tree.
func (r *Response) Encode() Value {
	params := r.Params
	if params == nil {
		params = Object{}
	}
	return Object{
		"rsp-type": r.Type,
		"rsp":      params,
		"prints":   encodePrints(r.Prints),
	}
}

// DecodeResponse decodes a wire value tree as a response message.
func DecodeResponse(v Value) (*Response, error) {
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("response is not an object (%T)", v)
	}
	rtype, ok := obj["rsp-type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid rsp-type")
	}
	params, err := fieldObject(obj, "rsp")
	if err != nil {
		return nil, err
	}
	prints, err := decodePrints(obj["prints"])
	if err != nil {
		return nil, err
	}
	return &Response{Type: rtype, Params: params, Prints: prints}, nil
}

// A PrintEntry associates a peer identity with a certificate fingerprint.
type PrintEntry struct {
	Host string // the peer's host name or address
	Port int    // the peer's port
	Algo string // the digest algorithm name, e.g. "sha2-256"
	Val  []byte // the digest value
}

func (p PrintEntry) encode() Value {
	val := make([]Value, len(p.Val))
	for i, b := range p.Val {
		val[i] = int(b)
	}
	return Object{
		"host":  p.Host,
		"port":  p.Port,
		"print": Object{"algo": p.Algo, "val": val},
	}
}

func encodePrints(ps []PrintEntry) []Value {
	out := make([]Value, len(ps))
	for i, p := range ps {
		out[i] = p.encode()
	}
	return out
}

// decodePrints decodes the "prints" array of a message. A missing or nil
// array is treated as empty; a malformed entry is an error.
func decodePrints(v Value) ([]PrintEntry, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]Value)
	if !ok {
		return nil, fmt.Errorf("prints is not an array (%T)", v)
	}
	out := make([]PrintEntry, 0, len(arr))
	for i, elt := range arr {
		p, err := decodePrintEntry(elt)
		if err != nil {
			return nil, fmt.Errorf("prints[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func decodePrintEntry(v Value) (PrintEntry, error) {
	obj, ok := v.(Object)
	if !ok {
		return PrintEntry{}, fmt.Errorf("entry is not an object (%T)", v)
	}
	host, ok := obj["host"].(string)
	if !ok {
		return PrintEntry{}, fmt.Errorf("missing or invalid host")
	}
	port, ok := Int(obj["port"])
	if !ok || port < 0 || port > 65535 {
		return PrintEntry{}, fmt.Errorf("missing or invalid port")
	}
	pobj, ok := obj["print"].(Object)
	if !ok {
		return PrintEntry{}, fmt.Errorf("missing or invalid print")
	}
	algo, ok := pobj["algo"].(string)
	if !ok {
		return PrintEntry{}, fmt.Errorf("missing or invalid algo")
	}
	varr, ok := pobj["val"].([]Value)
	if !ok {
		return PrintEntry{}, fmt.Errorf("missing or invalid val")
	}
	val := make([]byte, len(varr))
	for i, elt := range varr {
		b, ok := Int(elt)
		if !ok || b < 0 || b > 255 {
			return PrintEntry{}, fmt.Errorf("val[%d] out of range", i)
		}
		val[i] = byte(b)
	}
	return PrintEntry{Host: host, Port: port, Algo: algo, Val: val}, nil
}

// DecodeStatusError decodes the body of an "unprocessable" reply, reporting
// its parameter map and message.
func DecodeStatusError(v Value) (params map[string]string, message string, _ error) {
	obj, ok := v.(Object)
	if !ok {
		return nil, "", fmt.Errorf("error body is not an object (%T)", v)
	}
	message, ok = obj["message"].(string)
	if !ok {
		return nil, "", fmt.Errorf("missing or invalid message")
	}
	params = make(map[string]string)
	if pv, ok := obj["params"]; ok && pv != nil {
		pobj, ok := pv.(Object)
		if !ok {
			return nil, "", fmt.Errorf("params is not an object (%T)", pv)
		}
		for key, val := range pobj {
			s, ok := val.(string)
			if !ok {
				return nil, "", fmt.Errorf("params[%q] is not a string", key)
			}
			params[key] = s
		}
	}
	return params, message, nil
}

// DecodeErrorID decodes the body of an "internal error" reply, reporting the
// opaque error identifier assigned by the peer.
func DecodeErrorID(v Value) (string, error) {
	obj, ok := v.(Object)
	if !ok {
		return "", fmt.Errorf("error body is not an object (%T)", v)
	}
	id, ok := obj["error"].(string)
	if !ok {
		return "", fmt.Errorf("missing or invalid error id")
	}
	return id, nil
}

// fieldObject returns the object stored under key in obj. A missing or nil
// field is treated as an empty object.
func fieldObject(obj Object, key string) (Object, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return Object{}, nil
	}
	out, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("%s is not an object (%T)", key, v)
	}
	return out, nil
}

// Int reports the value of v as an int, accepting any of the integer and
// floating representations produced by the JSON and msgpack decoders.
// Floating values with a fractional part are rejected.
func Int(v Value) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int8:
		return int(t), true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint8:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		if t > math.MaxInt {
			return 0, false
		}
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

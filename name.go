// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import (
	"fmt"
	"strings"
)

// A Name is an immutable qualified identifier in dotted form, such as
// "org.example.chat.Room". Each dot-separated segment comprises ASCII
// letters, digits, and dashes, and may not begin or end with a dash. Names
// are the sole key type for schema modules and types.
//
// The string form of a valid Name round-trips through ParseName.
type Name string

// ParseName parses s as a qualified name, reporting an error if s is not
// lexically valid.
func ParseName(s string) (Name, error) {
	if s == "" {
		return "", fmt.Errorf("invalid name: empty")
	}
	for _, seg := range strings.Split(s, ".") {
		if !isSegment(seg) {
			return "", fmt.Errorf("invalid name %q: bad segment %q", s, seg)
		}
	}
	return Name(s), nil
}

// isSegment reports whether s is a valid name segment: one or more ASCII
// letters, digits, or dashes, not beginning or ending with a dash.
func isSegment(s string) bool {
	if s == "" || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b == '-' {
			continue
		}
		return false
	}
	return true
}

func (n Name) String() string { return string(n) }

// IsZero reports whether n is the zero name.
func (n Name) IsZero() bool { return n == "" }

// Leaf returns the final segment of n. If n is unqualified, Leaf returns n.
func (n Name) Leaf() Name {
	if i := strings.LastIndexByte(string(n), '.'); i >= 0 {
		return n[i+1:]
	}
	return n
}

// Parent returns the qualified prefix of n up to but excluding its final
// segment. If n is unqualified, Parent returns the zero name.
func (n Name) Parent() Name {
	if i := strings.LastIndexByte(string(n), '.'); i >= 0 {
		return n[:i]
	}
	return ""
}

// Resolve returns the name of child qualified relative to n. If n is the
// zero name, Resolve returns child unmodified.
func (n Name) Resolve(child Name) Name {
	if n.IsZero() {
		return child
	}
	return n + "." + child
}

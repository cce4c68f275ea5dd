// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package fingerprint defines algorithm-tagged certificate digests and the
// tables used to exchange them between CARP peers.
//
// Every request and response carries a "prints" array associating peer
// identities (host and port) with certificate fingerprints, letting peers
// learn or confirm each other's certificates without a separate handshake.
// The exchange is advisory: a fingerprint is never required to complete a
// call, and recording one never blocks.
package fingerprint

import (
	"bytes"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/creachadair/carp/wire"
	"github.com/multiformats/go-multihash"
)

// A Peer identifies the remote party of an exchange by host and port.
type Peer struct {
	Host string
	Port int
}

func (p Peer) String() string { return fmt.Sprintf("%s:%d", p.Host, p.Port) }

// A Fingerprint is an algorithm-tagged digest of a peer's certificate.
// The algorithm is named per the multihash registry, e.g. "sha2-256".
type Fingerprint struct {
	Algo   string
	Digest []byte
}

// New computes the fingerprint of data using the named digest algorithm.
// The algorithm name must be registered in the multihash function registry.
func New(algo string, data []byte) (Fingerprint, error) {
	code, ok := multihash.Names[algo]
	if !ok {
		return Fingerprint{}, fmt.Errorf("unknown digest algorithm %q", algo)
	}
	sum, err := multihash.Sum(data, code, -1)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("digest %q: %w", algo, err)
	}
	dec, err := multihash.Decode(sum)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("digest %q: %w", algo, err)
	}
	return Fingerprint{Algo: algo, Digest: dec.Digest}, nil
}

// FromCertificate computes the fingerprint of the DER encoding of cert.
func FromCertificate(algo string, cert *x509.Certificate) (Fingerprint, error) {
	return New(algo, cert.Raw)
}

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool { return f.Algo == "" && len(f.Digest) == 0 }

// Equal reports whether f and g have the same algorithm and digest.
func (f Fingerprint) Equal(g Fingerprint) bool {
	return f.Algo == g.Algo && bytes.Equal(f.Digest, g.Digest)
}

func (f Fingerprint) String() string {
	return f.Algo + ":" + hex.EncodeToString(f.Digest)
}

// A Table is a mapping from peer identity to certificate fingerprint.
//
// A table is call-local: the runtime constructs a fresh table for each
// invocation, so tables require no synchronization.
type Table struct {
	m map[Peer]Fingerprint
}

// NewTable constructs a new empty table.
func NewTable() *Table { return &Table{m: make(map[Peer]Fingerprint)} }

// Set records the fingerprint for p, replacing any previous entry.
func (t *Table) Set(p Peer, f Fingerprint) { t.m[p] = f }

// Get reports the fingerprint recorded for p, if one exists.
func (t *Table) Get(p Peer) (Fingerprint, bool) { f, ok := t.m[p]; return f, ok }

// Len reports the number of entries in t.
func (t *Table) Len() int { return len(t.m) }

// WireEntries converts t into wire print entries, ordered by peer identity.
func (t *Table) WireEntries() []wire.PrintEntry {
	out := make([]wire.PrintEntry, 0, len(t.m))
	for p, f := range t.m {
		out = append(out, wire.PrintEntry{Host: p.Host, Port: p.Port, Algo: f.Algo, Val: f.Digest})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Host != out[j].Host {
			return out[i].Host < out[j].Host
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// TableFromWire constructs a table from decoded wire print entries.
func TableFromWire(entries []wire.PrintEntry) *Table {
	t := NewTable()
	for _, e := range entries {
		t.Set(Peer{Host: e.Host, Port: e.Port}, Fingerprint{Algo: e.Algo, Digest: e.Val})
	}
	return t
}

// A Repository records peer fingerprints across calls. Implementations must
// be safe for concurrent use. Recording is opportunistic and must not block
// the progress of a call.
type Repository interface {
	// Record notes that peer p presented fingerprint f.
	Record(p Peer, f Fingerprint)

	// Lookup reports the fingerprint recorded for p, if one exists.
	Lookup(p Peer) (Fingerprint, bool)
}

// A MemRepository is an in-memory Repository. The first fingerprint recorded
// for a peer is retained; a differing later fingerprint is ignored, leaving
// mismatch handling to the transport layer.
type MemRepository struct {
	μ sync.Mutex
	m map[Peer]Fingerprint
}

// NewMemRepository constructs a new empty in-memory repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{m: make(map[Peer]Fingerprint)}
}

// Record implements a method of the [Repository] interface.
func (r *MemRepository) Record(p Peer, f Fingerprint) {
	if f.IsZero() {
		return
	}
	r.μ.Lock()
	defer r.μ.Unlock()
	if _, ok := r.m[p]; !ok {
		r.m[p] = f
	}
}

// Lookup implements a method of the [Repository] interface.
func (r *MemRepository) Lookup(p Peer) (Fingerprint, bool) {
	r.μ.Lock()
	defer r.μ.Unlock()
	f, ok := r.m[p]
	return f, ok
}

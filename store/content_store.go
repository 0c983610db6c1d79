// Package store keeps the artefacts of weaving runs: a content-addressed
// index of woven classes, a persistent cache that lets incremental builds
// skip unchanged inputs, and the CBOR run report.
package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// ContentStore: content-addressed index of woven classes
// ---------------------------------------------------------------------------

// ContentStore indexes woven classes by the hash of their digest.
type ContentStore struct {
	mu      sync.RWMutex
	classes map[[32]byte]*ClassDigest
	byName  map[string][32]byte
}

// ClassDigest identifies one woven class: its name, the hashes of its input
// and output bytes, and the methods that were woven.
type ClassDigest struct {
	Name         string   `cbor:"1,keyasint"`
	SourceHash   [32]byte `cbor:"2,keyasint"`
	WovenHash    [32]byte `cbor:"3,keyasint"`
	WovenMethods []string `cbor:"4,keyasint,omitempty"` // sorted name+descriptor
	Hash         [32]byte `cbor:"5,keyasint"`
}

// NewContentStore creates an empty content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		classes: make(map[[32]byte]*ClassDigest),
		byName:  make(map[string][32]byte),
	}
}

// IndexClass adds a class digest. Digests with a zero hash are ignored.
// A later digest for the same class name replaces the earlier one.
func (cs *ContentStore) IndexClass(d *ClassDigest) {
	if d.Hash == ([32]byte{}) {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if old, ok := cs.byName[d.Name]; ok && old != d.Hash {
		delete(cs.classes, old)
	}
	cs.classes[d.Hash] = d
	cs.byName[d.Name] = d.Hash
}

// LookupName returns the digest indexed for a class name, or nil.
func (cs *ContentStore) LookupName(name string) *ClassDigest {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	h, ok := cs.byName[name]
	if !ok {
		return nil
	}
	return cs.classes[h]
}

// Digests returns every digest ordered by class name.
func (cs *ContentStore) Digests() []*ClassDigest {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*ClassDigest, 0, len(cs.classes))
	for _, d := range cs.classes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ClassCount returns the number of indexed digests.
func (cs *ContentStore) ClassCount() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.classes)
}

// IndexReport rebuilds the index of a previous run from its report.
// Classes that failed or were left unchanged are skipped.
func IndexReport(r *Report) *ContentStore {
	cs := NewContentStore()
	for _, c := range r.Classes {
		if c.Digest != nil && !c.Digest.Unchanged() {
			cs.IndexClass(c.Digest)
		}
	}
	return cs
}

// ---------------------------------------------------------------------------
// Class hashing
// ---------------------------------------------------------------------------

// HashClass computes the SHA-256 of a digest from its fields. The method
// list is sorted first, so the order of weaving does not matter.
func HashClass(name string, source, woven [32]byte, methods []string) [32]byte {
	sorted := make([]string, len(methods))
	copy(sorted, methods)
	sort.Strings(sorted)

	var buf []byte
	writeString := func(s string) {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}

	// Tag byte for digest format
	buf = append(buf, 0x01)
	writeString(name)
	buf = append(buf, source[:]...)
	buf = append(buf, woven[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(sorted)))
	for _, m := range sorted {
		writeString(m)
	}
	return sha256.Sum256(buf)
}

// DigestClass builds a digest for a class woven from source into woven.
func DigestClass(name string, source, woven []byte, methods []string) *ClassDigest {
	d := &ClassDigest{
		Name:       name,
		SourceHash: sha256.Sum256(source),
		WovenHash:  sha256.Sum256(woven),
	}
	if len(methods) > 0 {
		d.WovenMethods = make([]string, len(methods))
		copy(d.WovenMethods, methods)
		sort.Strings(d.WovenMethods)
	}
	d.Hash = HashClass(d.Name, d.SourceHash, d.WovenHash, d.WovenMethods)
	return d
}

// Unchanged reports whether weaving left the class bytes as they were.
func (d *ClassDigest) Unchanged() bool {
	return d.SourceHash == d.WovenHash
}

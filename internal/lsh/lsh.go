// Package lsh implements a banded locality-sensitive index over MinHash
// signatures.
//
// The 64-component signature is split into 16 bands of 4 rows. A fingerprint
// is recorded in exactly one bucket per band; candidate lookup unions the 16
// buckets a signature maps to. Any pair agreeing on a full band collides, so
// true near-duplicates are found with high probability at the cost of false
// candidates the caller must filter by exact signature comparison.
package lsh

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/hostpilot/semcache/internal/minhash"
)

// Band geometry over the minhash.Len-component signature.
const (
	Bands = 16
	Rows  = minhash.Len / Bands
)

// Index maps signature bands to buckets of fingerprints. It is not safe for
// concurrent use; the owning cache serializes access.
type Index struct {
	buckets [Bands]map[uint64]map[string]struct{}
}

// New returns an empty index.
func New() *Index {
	idx := &Index{}
	for b := range idx.buckets {
		idx.buckets[b] = make(map[uint64]map[string]struct{})
	}
	return idx
}

// Add records fp under one bucket per band. Adding the same (fp, sig) pair
// again is a no-op.
func (idx *Index) Add(fp string, sig minhash.Signature) {
	for b := 0; b < Bands; b++ {
		key := bucketKey(b, sig)
		bucket, ok := idx.buckets[b][key]
		if !ok {
			bucket = make(map[string]struct{})
			idx.buckets[b][key] = bucket
		}
		bucket[fp] = struct{}{}
	}
}

// Remove deletes fp from every band it was recorded under for sig, pruning
// buckets that become empty.
func (idx *Index) Remove(fp string, sig minhash.Signature) {
	for b := 0; b < Bands; b++ {
		key := bucketKey(b, sig)
		bucket, ok := idx.buckets[b][key]
		if !ok {
			continue
		}
		delete(bucket, fp)
		if len(bucket) == 0 {
			delete(idx.buckets[b], key)
		}
	}
}

// Candidates returns the union of fingerprints sharing at least one band
// bucket with sig.
func (idx *Index) Candidates(sig minhash.Signature) []string {
	seen := make(map[string]struct{})
	for b := 0; b < Bands; b++ {
		for fp := range idx.buckets[b][bucketKey(b, sig)] {
			seen[fp] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for fp := range seen {
		out = append(out, fp)
	}
	return out
}

// Buckets returns the total number of occupied buckets across all bands.
func (idx *Index) Buckets() int {
	n := 0
	for b := range idx.buckets {
		n += len(idx.buckets[b])
	}
	return n
}

// Memberships returns how many buckets fp occupies for sig. Used to verify
// the one-bucket-per-band invariant.
func (idx *Index) Memberships(fp string, sig minhash.Signature) int {
	n := 0
	for b := 0; b < Bands; b++ {
		if bucket, ok := idx.buckets[b][bucketKey(b, sig)]; ok {
			if _, ok := bucket[fp]; ok {
				n++
			}
		}
	}
	return n
}

// bucketKey hashes one band's sub-vector to its bucket key.
func bucketKey(band int, sig minhash.Signature) uint64 {
	var buf [Rows * 8]byte
	start := band * Rows
	for i := 0; i < Rows; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], sig[start+i])
	}
	return xxhash.Sum64(buf[:])
}

// Package minhash computes fixed-length MinHash signatures over shingle sets.
//
// Two sets with Jaccard similarity j produce signatures whose components
// agree on an expected fraction j of positions, so the agreement fraction is
// an unbiased estimate of the true similarity.
package minhash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Len is the number of signature components (independent hash seeds).
const Len = 64

// Signature is a fixed-length MinHash signature.
type Signature [Len]uint64

// Compute returns the signature of a shingle set. The empty set yields the
// all-zero signature; two degenerate queries therefore match each other at
// 100%, an accepted approximation limitation.
func Compute(shingles map[string]struct{}) Signature {
	var sig Signature
	if len(shingles) == 0 {
		return sig
	}

	for i := 0; i < Len; i++ {
		min := ^uint64(0)
		for s := range shingles {
			if h := seededSum(uint64(i), s); h < min {
				min = h
			}
		}
		sig[i] = min
	}
	return sig
}

// Similarity returns the fraction of agreeing components between a and b.
func Similarity(a, b Signature) float64 {
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / Len
}

// seededSum hashes s under the hash-family member identified by seed.
func seededSum(seed uint64, s string) uint64 {
	var d xxhash.Digest
	d.Reset()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	d.Write(buf[:])
	d.WriteString(s)
	return d.Sum64()
}

// Package shingle turns raw query text into a canonical shingle set for
// similarity comparison.
package shingle

import "strings"

// Size is the shingle width in words.
const Size = 2

// minShingles is the floor below which single-word tokens are mixed in, so
// short queries still produce a usable set.
const minShingles = 3

// Normalize lower-cases s, trims it, and collapses whitespace runs to a
// single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Set returns the 2-word shingles of the normalized text. Queries too short
// to produce at least minShingles shingles also contribute their single-word
// tokens. Empty input yields an empty set.
func Set(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))

	shingles := make(map[string]struct{}, len(words))
	for i := 0; i+Size <= len(words); i++ {
		shingles[strings.Join(words[i:i+Size], " ")] = struct{}{}
	}

	if len(words) < Size || len(shingles) < minShingles {
		for _, w := range words {
			shingles[w] = struct{}{}
		}
	}

	return shingles
}

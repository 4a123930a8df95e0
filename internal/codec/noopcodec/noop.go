// Package noopcodec provides a pass-through payload codec.
package noopcodec

import "github.com/hostpilot/semcache/internal/codec"

// Compile-time check that Codec implements codec.Codec.
var _ codec.Codec = (*Codec)(nil)

// Codec stores payloads uncompressed.
type Codec struct{}

// New returns a new no-op codec.
func New() *Codec {
	return &Codec{}
}

// Encode returns data unchanged.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	return data, nil
}

// Decode returns data unchanged.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// Name returns the empty string.
func (c *Codec) Name() string {
	return ""
}

// Package codec provides compression and decompression for cached response
// payloads.
package codec

// Codec compresses and decompresses response payloads at rest.
type Codec interface {
	// Encode compresses data.
	Encode(data []byte) ([]byte, error)
	// Decode decompresses data previously produced by Encode.
	Decode(data []byte) ([]byte, error)
	// Name returns the codec name (e.g., "zstd"). Empty for no compression.
	Name() string
}

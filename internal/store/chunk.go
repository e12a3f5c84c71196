package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Chunk is an embedding-ready text fragment (spec.md §3), unique within a
// document by (node_id, chunk_index).
type Chunk struct {
	ID         int64
	DocID      string
	NodeID     string
	ChunkIndex int
	Content    string
	TokenCount int
	StartPage  int
	EndPage    int
	Embedding  []float32
}

// EncodeEmbedding packs a float32 vector as a little-endian BLOB
// (spec.md §6 "Embedding BLOB format").
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding unpacks a little-endian BLOB into a float32 vector of the
// expected dimension. Returns an error if the BLOB length isn't a multiple
// of 4 bytes or doesn't match dim.
func DecodeEmbedding(blob []byte, dim int) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("store: embedding blob length %d not a multiple of 4", len(blob))
	}
	n := len(blob) / 4
	if dim > 0 && n != dim {
		return nil, fmt.Errorf("store: embedding blob has %d floats, want %d", n, dim)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

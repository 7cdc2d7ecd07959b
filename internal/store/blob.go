package store

import (
	"encoding/binary"
	"math"
)

// Float64SliceToBlob encodes f as little-endian IEEE 754 doubles.
func Float64SliceToBlob(f []float64) []byte {
	b := make([]byte, 8*len(f))
	for i, v := range f {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

func BlobToFloat64Slice(b []byte) []float64 {
	n := len(b) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

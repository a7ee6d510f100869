package store

import (
	"encoding/binary"
	"fmt"
)

// encodeBitmap serializes occupancy words as little-endian bytes.
func encodeBitmap(words []uint64) []byte {
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[8*i:], w)
	}
	return buf
}

// decodeBitmap is the inverse of encodeBitmap.
func decodeBitmap(data []byte) ([]uint64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("bitmap length %d is not a multiple of 8", len(data))
	}
	words := make([]uint64, len(data)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	return words, nil
}

package codegen

import (
	"encoding/binary"
	"math"
)

func float64bits(f float64) uint64 { return math.Float64bits(f) }

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], v)
	return buf[:]
}

package audio

import (
	"encoding/binary"
	"sync"
)

// Int16ToBytes converts int16 samples to an s16le byte slice.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Int16ToBytesInto writes s16le bytes into dst, avoiding allocation.
// dst must have capacity >= len(samples)*2. Returns the used portion.
func Int16ToBytesInto(samples []int16, dst []byte) []byte {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return dst[:len(samples)*2]
}

// BytesToInt16 converts an s16le byte slice to int16 samples.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// FrameBuffers holds pre-allocated buffers for the render→encode→send hot
// path. Used via sync.Pool to avoid per-frame allocations.
type FrameBuffers struct {
	OpusBuf  []byte // cap: MaxEncodedBytes
	BytesBuf []byte // cap: one frame of s16le bytes
}

// MaxEncodedBytes bounds one encoded Opus frame.
const MaxEncodedBytes = 4000

var framePool = sync.Pool{
	New: func() interface{} {
		return &FrameBuffers{
			OpusBuf:  make([]byte, MaxEncodedBytes),
			BytesBuf: make([]byte, 8192),
		}
	},
}

// AcquireFrameBuffers gets a set of buffers from the pool.
func AcquireFrameBuffers() *FrameBuffers {
	return framePool.Get().(*FrameBuffers)
}

// ReleaseFrameBuffers returns buffers to the pool.
func ReleaseFrameBuffers(b *FrameBuffers) {
	framePool.Put(b)
}

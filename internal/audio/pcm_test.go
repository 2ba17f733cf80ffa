package audio

import (
	"bytes"
	"testing"
)

func TestInt16BytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	b := Int16ToBytes(in)
	if len(b) != len(in)*2 {
		t.Fatalf("byte len = %d, want %d", len(b), len(in)*2)
	}
	out := BytesToInt16(b)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestInt16ToBytesInto(t *testing.T) {
	in := []int16{-2, 400, 31000}
	dst := make([]byte, 64)
	got := Int16ToBytesInto(in, dst)
	if !bytes.Equal(got, Int16ToBytes(in)) {
		t.Error("Into variant disagrees with allocating variant")
	}
}

func TestFrameBuffersPool(t *testing.T) {
	b := AcquireFrameBuffers()
	if len(b.OpusBuf) != MaxEncodedBytes {
		t.Errorf("OpusBuf len = %d, want %d", len(b.OpusBuf), MaxEncodedBytes)
	}
	ReleaseFrameBuffers(b)
}

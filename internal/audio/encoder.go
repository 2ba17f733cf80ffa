package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

// Encoder converts interleaved s16le PCM frames to Opus for WebRTC output.
type Encoder struct {
	enc *opus.Encoder
}

// NewEncoder creates an Opus encoder for the given PCM layout.
func NewEncoder(sampleRate, channels, bitrate int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// Encode converts one PCM frame into dst and returns the encoded portion.
// dst must have capacity for a full Opus frame (MaxEncodedBytes).
func (e *Encoder) Encode(pcm []int16, dst []byte) ([]byte, error) {
	n, err := e.enc.Encode(pcm, dst)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return dst[:n], nil
}

// Package device models the audio processing graph: oscillators, gains, a
// notch filter, looping buffer sources and a time-domain analyser, wired
// source→filter→gain→sink. The Renderer implementation produces real PCM
// frames for streaming; NullDevice keeps only the graph bookkeeping and is
// the degraded target when rendering cannot start.
package device

import (
	"time"

	"github.com/quietmask/maskd/internal/synth"
)

const (
	// SampleRate is the render rate, matching the Opus/WebRTC clock.
	SampleRate = 48000
	// Channels of the rendered program.
	Channels = 2
	// FrameDuration of one rendered frame.
	FrameDuration = 20 * time.Millisecond
	// FrameSize is samples per channel per frame.
	FrameSize = SampleRate / 50
	// FrameSamples is total interleaved samples per frame.
	FrameSamples = FrameSize * Channels

	// AnalyserWindow is the size in bytes of the visualization snapshot.
	AnalyserWindow = 2048
)

// Node is a handle to a live element of the processing graph.
type Node interface {
	render(dst [Channels][]float64)
}

// Oscillator is a sine source with a live-settable frequency.
type Oscillator interface {
	Node
	SetFrequency(hz float64)
	Start()
	Stop()
}

// Gain scales the summed signal of its inputs.
type Gain interface {
	Node
	SetGain(g float64)
	GainValue() float64
}

// NotchFilter attenuates a narrow band around its center frequency.
type NotchFilter interface {
	Node
	SetFrequency(hz float64)
	SetQ(q float64)
}

// BufferSource loops a synthesized buffer.
type BufferSource interface {
	Node
	Start()
	Stop()
}

// Analyser exposes the most recent time-domain bytes of the sink output.
// Values are unsigned with 128 at zero, AnalyserWindow bytes per snapshot.
type Analyser interface {
	Snapshot() []byte
}

// Device creates nodes and owns the graph topology.
type Device interface {
	NewOscillator() Oscillator
	NewGain(g float64) Gain
	NewNotchFilter(hz, q float64) NotchFilter
	NewBufferSource(buf *synth.Buffer) BufferSource

	// Sink is the long-lived output node every chain terminates in.
	Sink() Node
	// Analyser observes the sink output.
	Analyser() Analyser

	// Connect routes from's output into to. Connecting an already-connected
	// pair is a no-op.
	Connect(from, to Node)
	// Disconnect removes from's routing into to. Disconnecting a node that
	// was never connected is a no-op, never an error.
	Disconnect(from, to Node)

	// Now is the device clock in seconds since Start.
	Now() float64

	Start() error
	Close()
}

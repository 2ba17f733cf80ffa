package device

import (
	"errors"
	"time"

	"github.com/quietmask/maskd/internal/synth"
)

// ErrUnavailable is returned by a NullDevice configured to fail Start,
// standing in for an unsupported audio capability.
var ErrUnavailable = errors.New("audio device unavailable")

// NullDevice keeps full graph bookkeeping but never renders. It backs the
// controller tests and the degraded no-op state after a failed device start.
type NullDevice struct {
	// FailStart makes Start return ErrUnavailable.
	FailStart bool

	graph   *graph
	sink    *sinkNode
	an      *analyserTap
	created time.Time
}

// NewNullDevice creates a silent device.
func NewNullDevice() *NullDevice {
	g := newGraph()
	return &NullDevice{
		graph:   g,
		sink:    &sinkNode{g: g},
		an:      newAnalyserTap(),
		created: time.Now(),
	}
}

func (d *NullDevice) NewOscillator() Oscillator {
	return &oscillatorNode{g: d.graph, freq: 440}
}

func (d *NullDevice) NewGain(g float64) Gain {
	return &gainNode{g: d.graph, gain: g}
}

func (d *NullDevice) NewNotchFilter(hz, q float64) NotchFilter {
	n := &notchNode{g: d.graph, freq: hz, q: q}
	for ch := range n.sections {
		n.sections[ch].setNotch(hz, q, SampleRate)
	}
	return n
}

func (d *NullDevice) NewBufferSource(buf *synth.Buffer) BufferSource {
	return &bufferSourceNode{g: d.graph, buf: buf}
}

func (d *NullDevice) Sink() Node { return d.sink }

func (d *NullDevice) Analyser() Analyser { return d.an }

func (d *NullDevice) Connect(from, to Node) { d.graph.connect(from, to) }

func (d *NullDevice) Disconnect(from, to Node) { d.graph.disconnect(from, to) }

func (d *NullDevice) Now() float64 { return time.Since(d.created).Seconds() }

func (d *NullDevice) Start() error {
	if d.FailStart {
		return ErrUnavailable
	}
	return nil
}

func (d *NullDevice) Close() {}

// Connected reports whether from currently feeds to. Test helper.
func (d *NullDevice) Connected(from, to Node) bool {
	for _, n := range d.graph.inputs(to) {
		if n == from {
			return true
		}
	}
	return false
}

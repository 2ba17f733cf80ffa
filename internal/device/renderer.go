package device

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/metrics"
	"github.com/quietmask/maskd/internal/ringbuffer"
	"github.com/quietmask/maskd/internal/synth"
)

// Renderer is the software audio device. It pulls the sink graph once per
// frame at real-time rate and emits interleaved s16le stereo frames on
// Frames. The analyser taps the same output.
type Renderer struct {
	logger *zap.Logger
	graph  *graph
	sink   *sinkNode
	an     *analyserTap

	frames chan []int16

	mu      sync.Mutex
	started time.Time
	stop    chan struct{}
	done    chan struct{}
}

// NewRenderer creates a renderer with an empty graph.
func NewRenderer(logger *zap.Logger) *Renderer {
	g := newGraph()
	return &Renderer{
		logger: logger,
		graph:  g,
		sink:   &sinkNode{g: g},
		an:     newAnalyserTap(),
		frames: make(chan []int16, 8),
	}
}

func (r *Renderer) NewOscillator() Oscillator {
	return &oscillatorNode{g: r.graph, freq: 440}
}

func (r *Renderer) NewGain(g float64) Gain {
	return &gainNode{g: r.graph, gain: g}
}

func (r *Renderer) NewNotchFilter(hz, q float64) NotchFilter {
	n := &notchNode{g: r.graph, freq: hz, q: q}
	for ch := range n.sections {
		n.sections[ch].setNotch(hz, q, SampleRate)
	}
	return n
}

func (r *Renderer) NewBufferSource(buf *synth.Buffer) BufferSource {
	return &bufferSourceNode{g: r.graph, buf: buf}
}

func (r *Renderer) Sink() Node { return r.sink }

func (r *Renderer) Analyser() Analyser { return r.an }

func (r *Renderer) Connect(from, to Node) { r.graph.connect(from, to) }

func (r *Renderer) Disconnect(from, to Node) { r.graph.disconnect(from, to) }

// Now returns seconds of device time since Start.
func (r *Renderer) Now() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	return time.Since(r.started).Seconds()
}

// Frames is the stream of rendered 20ms frames. Closed on Close.
func (r *Renderer) Frames() <-chan []int16 {
	return r.frames
}

// Start launches the render loop. Calling Start twice is an error-free no-op.
func (r *Renderer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return nil
	}
	r.started = time.Now()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.logger.Info("render loop starting",
		zap.Int("sampleRate", SampleRate),
		zap.Duration("frame", FrameDuration),
	)
	go r.run(r.stop, r.done)
	return nil
}

// Close stops the render loop and closes Frames. Idempotent.
func (r *Renderer) Close() {
	r.mu.Lock()
	stop := r.stop
	done := r.done
	r.stop = nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Renderer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(r.frames)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := r.renderFrame()
			select {
			case r.frames <- frame:
			default:
				// consumer behind; drop rather than stall the device clock
				metrics.DroppedFramesTotal.Inc()
			}
		}
	}
}

// renderFrame pulls one frame from the sink, feeds the analyser and
// converts to interleaved int16 with full-scale clipping.
func (r *Renderer) renderFrame() []int16 {
	mix := framePool.Get().(*[Channels][]float64)
	defer framePool.Put(mix)

	r.sink.render(*mix)
	r.an.observe(*mix)

	out := make([]int16, FrameSamples)
	for i := 0; i < FrameSize; i++ {
		for ch := 0; ch < Channels; ch++ {
			s := mix[ch][i]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			out[i*Channels+ch] = int16(s * 32767)
		}
	}
	return out
}

// analyserTap keeps the most recent sink output as unsigned time-domain
// bytes, one byte per mono sample, 128 at zero.
type analyserTap struct {
	ring *ringbuffer.RingBuffer
}

func newAnalyserTap() *analyserTap {
	// a few windows of history so readers never race the writer dry
	return &analyserTap{ring: ringbuffer.New(AnalyserWindow * 4)}
}

func (a *analyserTap) observe(mix [Channels][]float64) {
	buf := make([]byte, len(mix[0]))
	for i := range mix[0] {
		mono := (mix[0][i] + mix[1][i]) / 2
		v := mono*127 + 128
		if v > 255 {
			v = 255
		} else if v < 0 {
			v = 0
		}
		buf[i] = byte(v)
	}
	a.ring.Write(buf)
}

// Snapshot returns the newest AnalyserWindow bytes, zero-padded at the
// front when less has been rendered, or nil before any rendering.
func (a *analyserTap) Snapshot() []byte {
	data := a.ring.SnapshotLast(AnalyserWindow)
	if data == nil {
		return nil
	}
	if len(data) == AnalyserWindow {
		return data
	}
	out := make([]byte, AnalyserWindow)
	for i := range out {
		out[i] = 128
	}
	copy(out[AnalyserWindow-len(data):], data)
	return out
}

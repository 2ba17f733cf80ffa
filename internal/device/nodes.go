package device

import (
	"math"
	"sync"

	"github.com/quietmask/maskd/internal/synth"
)

// graph tracks edges between nodes. Edges point backwards: for each
// destination the set of sources feeding it.
type graph struct {
	mu    sync.Mutex
	edges map[Node]map[Node]struct{}
}

func newGraph() *graph {
	return &graph{edges: make(map[Node]map[Node]struct{})}
}

func (g *graph) connect(from, to Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.edges[to]
	if !ok {
		set = make(map[Node]struct{})
		g.edges[to] = set
	}
	set[from] = struct{}{}
}

func (g *graph) disconnect(from, to Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.edges[to]; ok {
		delete(set, from)
	}
}

func (g *graph) inputs(to Node) []Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.edges[to]
	if len(set) == 0 {
		return nil
	}
	out := make([]Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}

// framePool recycles scratch buffers for the render recursion.
var framePool = sync.Pool{
	New: func() interface{} {
		var b [Channels][]float64
		for ch := range b {
			b[ch] = make([]float64, FrameSize)
		}
		return &b
	},
}

// renderInputsInto sums the rendered output of every node feeding dst's
// owner into dst. dst is zeroed first.
func renderInputsInto(g *graph, owner Node, dst [Channels][]float64) {
	for ch := range dst {
		for i := range dst[ch] {
			dst[ch][i] = 0
		}
	}
	for _, in := range g.inputs(owner) {
		tmp := framePool.Get().(*[Channels][]float64)
		in.render(*tmp)
		for ch := range dst {
			for i := range dst[ch] {
				dst[ch][i] += tmp[ch][i]
			}
		}
		framePool.Put(tmp)
	}
}

type oscillatorNode struct {
	g *graph

	mu      sync.Mutex
	freq    float64
	phase   float64
	playing bool
}

func (o *oscillatorNode) SetFrequency(hz float64) {
	o.mu.Lock()
	o.freq = hz
	o.mu.Unlock()
}

func (o *oscillatorNode) Start() {
	o.mu.Lock()
	o.playing = true
	o.mu.Unlock()
}

func (o *oscillatorNode) Stop() {
	o.mu.Lock()
	o.playing = false
	o.phase = 0
	o.mu.Unlock()
}

func (o *oscillatorNode) render(dst [Channels][]float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.playing {
		for ch := range dst {
			for i := range dst[ch] {
				dst[ch][i] = 0
			}
		}
		return
	}
	step := 2 * math.Pi * o.freq / SampleRate
	for i := range dst[0] {
		s := math.Sin(o.phase)
		o.phase += step
		if o.phase > 2*math.Pi {
			o.phase -= 2 * math.Pi
		}
		for ch := range dst {
			dst[ch][i] = s
		}
	}
}

type gainNode struct {
	g *graph

	mu   sync.Mutex
	gain float64
}

func (n *gainNode) SetGain(g float64) {
	n.mu.Lock()
	n.gain = g
	n.mu.Unlock()
}

func (n *gainNode) GainValue() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gain
}

func (n *gainNode) render(dst [Channels][]float64) {
	renderInputsInto(n.g, n, dst)
	g := n.GainValue()
	for ch := range dst {
		for i := range dst[ch] {
			dst[ch][i] *= g
		}
	}
}

type notchNode struct {
	g *graph

	mu       sync.Mutex
	freq, q  float64
	sections [Channels]biquad
}

func (n *notchNode) SetFrequency(hz float64) {
	n.mu.Lock()
	n.freq = hz
	for ch := range n.sections {
		n.sections[ch].setNotch(n.freq, n.q, SampleRate)
	}
	n.mu.Unlock()
}

func (n *notchNode) SetQ(q float64) {
	n.mu.Lock()
	n.q = q
	for ch := range n.sections {
		n.sections[ch].setNotch(n.freq, n.q, SampleRate)
	}
	n.mu.Unlock()
}

func (n *notchNode) render(dst [Channels][]float64) {
	renderInputsInto(n.g, n, dst)
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range dst {
		for i := range dst[ch] {
			dst[ch][i] = n.sections[ch].process(dst[ch][i])
		}
	}
}

type bufferSourceNode struct {
	g *graph

	mu      sync.Mutex
	buf     *synth.Buffer
	pos     int
	playing bool
}

func (s *bufferSourceNode) Start() {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

func (s *bufferSourceNode) Stop() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *bufferSourceNode) render(dst [Channels][]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.buf == nil || s.buf.Len() == 0 {
		for ch := range dst {
			for i := range dst[ch] {
				dst[ch][i] = 0
			}
		}
		return
	}
	n := s.buf.Len()
	for i := range dst[0] {
		for ch := range dst {
			dst[ch][i] = s.buf.Data[ch][s.pos]
		}
		s.pos++
		if s.pos >= n {
			s.pos = 0 // loop
		}
	}
}

// sinkNode mixes everything routed into it. The renderer pulls it once per
// frame; nothing renders past it.
type sinkNode struct {
	g *graph
}

func (s *sinkNode) render(dst [Channels][]float64) {
	renderInputsInto(s.g, s, dst)
}

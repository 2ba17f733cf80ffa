package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/quietmask/maskd/internal/metrics"
)

// Channels is the number of channels in every synthesized buffer.
const Channels = 2

// Buffer is a fixed-length stereo sample buffer. Samples are nominally in
// [-1, 1] but several recipes exceed that range transiently; the downstream
// gain stage provides the headroom, so no clamping happens here.
type Buffer struct {
	SampleRate int
	Data       [Channels][]float64
}

// Len returns the number of samples per channel.
func (b *Buffer) Len() int {
	return len(b.Data[0])
}

// Generate synthesizes a stereo buffer for the given texture. Each channel
// is generated independently so the loop has no inter-channel correlation.
func Generate(tex Texture, duration time.Duration, sampleRate int, rng *rand.Rand) *Buffer {
	start := time.Now()

	n := int(duration.Seconds() * float64(sampleRate))
	buf := &Buffer{SampleRate: sampleRate}
	for ch := 0; ch < Channels; ch++ {
		buf.Data[ch] = make([]float64, n)
		fillChannel(tex, buf.Data[ch], sampleRate, rng)
	}

	metrics.BuffersSynthesizedTotal.WithLabelValues(tex.String()).Inc()
	metrics.SynthesisDuration.WithLabelValues(tex.String()).
		Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	return buf
}

func fillChannel(tex Texture, out []float64, sampleRate int, rng *rand.Rand) {
	switch tex {
	case Rain:
		fillRain(out, rng)
	case Wave:
		fillWave(out, rng)
	case Forest:
		fillForest(out, rng)
	case Night:
		fillNight(out, sampleRate, rng)
	case Temple:
		fillTemple(out, sampleRate, rng)
	default:
		fillWhite(out, rng)
	}
}

func fillWhite(out []float64, rng *rand.Rand) {
	for i := range out {
		out[i] = uniform(rng)
	}
}

// fillRain layers sparse droplet spikes over boosted brown noise. Roughly
// 0.05% of samples carry a spike.
func fillRain(out []float64, rng *rand.Rand) {
	brown := newBrownFilter()
	for i := range out {
		s := brown.next(uniform(rng)) * 2
		if rng.Float64() < 0.0005 {
			s += uniform(rng) * 0.5
		}
		out[i] = s
	}
}

// fillWave modulates heavy brown noise with one full sine envelope cycle
// across the buffer, so the loop swells and recedes once per pass.
func fillWave(out []float64, rng *rand.Rand) {
	brown := newBrownFilter()
	n := float64(len(out))
	for i := range out {
		env := 0.5 + 0.5*math.Sin(2*math.Pi*float64(i)/n)
		out[i] = brown.next(uniform(rng)) * 4 * env
	}
}

// fillForest is pink noise under a gentle two-cycle envelope in [0.7, 1.0],
// a slow rustle rather than a swell.
func fillForest(out []float64, rng *rand.Rand) {
	pink := newPinkFilter()
	n := float64(len(out))
	for i := range out {
		env := 0.85 + 0.15*math.Sin(2*math.Pi*2*float64(i)/n)
		out[i] = pink.next(uniform(rng)) * env
	}
}

// fillNight adds insect-like chirp bursts to quiet pink noise. The burst
// envelope is a raised sine at ~10 Hz taken to the 20th power, which leaves
// short sharp peaks separated by near-silence.
func fillNight(out []float64, sampleRate int, rng *rand.Rand) {
	pink := newPinkFilter()
	for i := range out {
		t := float64(i) / float64(sampleRate)
		chirp := math.Pow((1+math.Sin(2*math.Pi*10*t))/2, 20)
		out[i] = pink.next(uniform(rng))*0.4 + chirp*uniform(rng)*0.3
	}
}

// fillTemple overlays a fixed 380 Hz resonance on unscaled pink noise,
// suggesting a distant bell under the wash.
func fillTemple(out []float64, sampleRate int, rng *rand.Rand) {
	pink := newPinkFilter()
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = pink.next(uniform(rng)) + 0.015*math.Sin(2*math.Pi*380*t)
	}
}

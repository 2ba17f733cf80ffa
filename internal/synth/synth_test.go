package synth

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

const testRate = 8000

func TestGenerateLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	durations := []time.Duration{
		100 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
	}
	for _, tex := range Textures() {
		for _, d := range durations {
			buf := Generate(tex, d, testRate, rng)
			want := int(d.Seconds() * testRate)
			for ch := 0; ch < Channels; ch++ {
				if got := len(buf.Data[ch]); got != want {
					t.Errorf("%s %v ch%d: len = %d, want %d", tex, d, ch, got, want)
				}
			}
		}
	}
}

func TestWhiteNoiseDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	buf := Generate(WhiteNoise, 4*time.Second, testRate, rng)
	samples := buf.Data[0]

	var sum, sumSq float64
	for _, s := range samples {
		if s <= -1 || s >= 1 {
			t.Fatalf("white sample %f out of (-1, 1)", s)
		}
		sum += s
		sumSq += s * s
	}
	n := float64(len(samples))

	mean := sum / n
	if math.Abs(mean) > 0.02 {
		t.Errorf("white noise mean = %f, want ~0", mean)
	}

	// Uniform(-1,1) variance is 1/3.
	variance := sumSq/n - mean*mean
	if variance < 0.28 || variance > 0.39 {
		t.Errorf("white noise variance = %f, want ~0.333", variance)
	}
}

// relativeHFEnergy measures high-frequency content as first-difference
// energy over total energy. White noise scores ~2; low-passed noise scores
// far lower.
func relativeHFEnergy(samples []float64) float64 {
	var diffSq, sq float64
	for i := 1; i < len(samples); i++ {
		d := samples[i] - samples[i-1]
		diffSq += d * d
		sq += samples[i] * samples[i]
	}
	return diffSq / sq
}

func TestFilteredTexturesAreLowBiased(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	white := relativeHFEnergy(Generate(WhiteNoise, 2*time.Second, testRate, rng).Data[0])

	for _, tex := range []Texture{Rain, Wave, Forest, Night, Temple} {
		buf := Generate(tex, 2*time.Second, testRate, rng)
		got := relativeHFEnergy(buf.Data[0])
		if got >= white*0.9 {
			t.Errorf("%s: HF energy ratio %f not clearly below white (%f)", tex, got, white)
		}
	}
}

func TestChannelsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	buf := Generate(WhiteNoise, time.Second, testRate, rng)

	var dot, l, r float64
	for i := range buf.Data[0] {
		dot += buf.Data[0][i] * buf.Data[1][i]
		l += buf.Data[0][i] * buf.Data[0][i]
		r += buf.Data[1][i] * buf.Data[1][i]
	}
	corr := dot / math.Sqrt(l*r)
	if math.Abs(corr) > 0.05 {
		t.Errorf("channel correlation = %f, want ~0", corr)
	}
}

func TestWaveEnvelopeShape(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	buf := Generate(Wave, 2*time.Second, testRate, rng)
	samples := buf.Data[0]
	n := len(samples)

	rms := func(seg []float64) float64 {
		var sq float64
		for _, s := range seg {
			sq += s * s
		}
		return math.Sqrt(sq / float64(len(seg)))
	}

	// Envelope peaks a quarter of the way in and bottoms out at three
	// quarters (sin crosses 1 then -1).
	loud := rms(samples[n/4-n/16 : n/4+n/16])
	quiet := rms(samples[3*n/4-n/16 : 3*n/4+n/16])
	if loud < quiet*4 {
		t.Errorf("wave envelope: loud rms %f not well above quiet rms %f", loud, quiet)
	}
}

func TestParseTexture(t *testing.T) {
	cases := []struct {
		in   string
		want Texture
	}{
		{"whitenoise", WhiteNoise},
		{"rain", Rain},
		{"wave", Wave},
		{"forest", Forest},
		{"night", Night},
		{"temple", Temple},
		{"thunder", WhiteNoise},
		{"", WhiteNoise},
	}
	for _, c := range cases {
		if got := ParseTexture(c.in); got != c.want {
			t.Errorf("ParseTexture(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTextureDurationsInRange(t *testing.T) {
	for _, tex := range Textures() {
		d := tex.Duration()
		if d < 2*time.Second || d > 6*time.Second {
			t.Errorf("%s duration %v outside [2s, 6s]", tex, d)
		}
	}
}

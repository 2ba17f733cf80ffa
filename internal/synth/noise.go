package synth

import "math/rand"

// brownFilter is a one-pole leaky integrator over white noise. With a small
// k the output random-walks slowly, concentrating energy at low frequencies.
type brownFilter struct {
	k    float64
	prev float64
}

func newBrownFilter() *brownFilter {
	return &brownFilter{k: 0.02}
}

func (b *brownFilter) next(white float64) float64 {
	out := (b.prev + b.k*white) / (1 + b.k)
	b.prev = out
	return out
}

// pinkFilter approximates 1/f noise with a seven-term weighted sum of
// one-pole filters at staggered decay rates (Voss–McCartney style
// coefficients, Paul Kellet's tuning).
type pinkFilter struct {
	b0, b1, b2, b3, b4, b5, b6 float64
}

func newPinkFilter() *pinkFilter {
	return &pinkFilter{}
}

func (p *pinkFilter) next(white float64) float64 {
	p.b0 = 0.99886*p.b0 + white*0.0555179
	p.b1 = 0.99332*p.b1 + white*0.0750759
	p.b2 = 0.96900*p.b2 + white*0.1538520
	p.b3 = 0.86650*p.b3 + white*0.3104856
	p.b4 = 0.55000*p.b4 + white*0.5329522
	p.b5 = -0.7616*p.b5 - white*0.0168980
	out := (p.b0 + p.b1 + p.b2 + p.b3 + p.b4 + p.b5 + p.b6 + white*0.5362) * 0.11
	p.b6 = white * 0.115926
	return out
}

// uniform draws a white noise sample in (-1, 1).
func uniform(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

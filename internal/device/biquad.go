package device

import "math"

// biquad is a direct-form-I second-order IIR section. Coefficients follow
// the RBJ audio EQ cookbook band-reject formulas.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

// setNotch configures the section as a notch at hz with the given Q,
// normalized by a0. State is kept so a live retune does not click.
func (f *biquad) setNotch(hz, q, sampleRate float64) {
	w0 := 2 * math.Pi * hz / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosw0 := math.Cos(w0)

	a0 := 1 + alpha
	f.b0 = 1 / a0
	f.b1 = -2 * cosw0 / a0
	f.b2 = 1 / a0
	f.a1 = -2 * cosw0 / a0
	f.a2 = (1 - alpha) / a0
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

package reverb

import "math"

// denormalThreshold is the magnitude under which feedback state is flushed
// to zero so decaying tails never reach subnormal floats.
const denormalThreshold = 1e-18

func undenormal(v float64) float64 {
	if math.Abs(v) < denormalThreshold {
		return 0
	}
	return v
}

// ----- Comb ----- //

// Comb is a feedback comb filter with a one-pole lowpass in the loop.
// The buffer is a view owned by the caller (usually a Model). Call
// SetBuffer before Process; a zero Comb has no storage and outputs silence.
type Comb struct {
	buffer      []float64
	index       int
	feedback    float64
	filterStore float64
	damp1       float64
	damp2       float64
}

// SetBuffer replaces the delay storage and must be called before Process.
// The comb never allocates.
func (c *Comb) SetBuffer(buf []float64) {
	c.buffer = buf
	c.index = 0
}

// Process ...
func (c *Comb) Process(input float64) float64 {
	if len(c.buffer) == 0 {
		return 0
	}
	output := undenormal(c.buffer[c.index])
	c.filterStore = undenormal(output*c.damp2 + c.filterStore*c.damp1)
	c.buffer[c.index] = input + c.filterStore*c.feedback
	c.index++
	if c.index >= len(c.buffer) {
		c.index = 0
	}
	return output
}

// Mute clears the delay line. Index and coefficients are kept.
func (c *Comb) Mute() {
	for i := range c.buffer {
		c.buffer[i] = 0
	}
	c.filterStore = 0
}

// SetDamp sets damp1 and keeps damp2 = 1 - damp1.
func (c *Comb) SetDamp(v float64) {
	c.damp1, c.damp2 = v, 1-v
}

// Damp ...
func (c *Comb) Damp() float64 { return c.damp1 }

// SetFeedback ...
func (c *Comb) SetFeedback(v float64) { c.feedback = v }

// Feedback ...
func (c *Comb) Feedback() float64 { return c.feedback }

// ----- Allpass ----- //

// Allpass is a Schroeder-style diffusion stage in the Freeverb form.
// Call SetBuffer before Process; a zero Allpass has no storage and only
// inverts its input.
type Allpass struct {
	buffer   []float64
	index    int
	feedback float64
}

// SetBuffer replaces the delay storage and must be called before Process.
// The allpass never allocates.
func (a *Allpass) SetBuffer(buf []float64) {
	a.buffer = buf
	a.index = 0
}

// Process ...
func (a *Allpass) Process(input float64) float64 {
	if len(a.buffer) == 0 {
		return -input
	}
	bufout := undenormal(a.buffer[a.index])
	output := -input + bufout
	a.buffer[a.index] = input + bufout*a.feedback
	a.index++
	if a.index >= len(a.buffer) {
		a.index = 0
	}
	return output
}

// Mute clears the delay line. Index and feedback are kept.
func (a *Allpass) Mute() {
	for i := range a.buffer {
		a.buffer[i] = 0
	}
}

// SetFeedback ...
func (a *Allpass) SetFeedback(v float64) { a.feedback = v }

// Feedback ...
func (a *Allpass) Feedback() float64 { return a.feedback }

package audio

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
)

// ----- Filter Kind ----- //

const (
	filterNone = iota
	filterLowpass
	filterHighpass
	filterBandpass
	filterNotch
	filterAllpass
	filterPeaking
	filterLowShelf
	filterHighShelf
	numFilterKinds
)

var filterKindNames = [numFilterKinds]string{
	"none",
	"lowpass",
	"highpass",
	"bandpass",
	"notch",
	"allpass",
	"peaking",
	"lowshelf",
	"highshelf",
}

func filterKindFromString(s string) (int, error) {
	for i, name := range filterKindNames {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown filter kind %q", s)
}

// ----- Coefficients ----- //

// Biquads from RBJ's cookbook. fc is normalized to the sample rate.
// Coefficients are returned as (a, b): a is feedforward, b is feedback,
// both already divided by a0.

func biquadH(b0, b1, b2, a0, a1, a2 float64) ([3]float64, [2]float64) {
	return [3]float64{b0 / a0, b1 / a0, b2 / a0}, [2]float64{a1 / a0, a2 / a0}
}

func makeBiquadH(kind int, fc float64, q float64, dBgain float64) ([3]float64, [2]float64) {
	w0 := 2 * math.Pi * fc
	cos := math.Cos(w0)
	sin := math.Sin(w0)
	alpha := sin / (2 * q)
	A := math.Pow(10, dBgain/40)
	switch kind {
	case filterLowpass:
		return biquadH((1-cos)/2, 1-cos, (1-cos)/2, 1+alpha, -2*cos, 1-alpha)
	case filterHighpass:
		return biquadH((1+cos)/2, -(1 + cos), (1+cos)/2, 1+alpha, -2*cos, 1-alpha)
	case filterBandpass:
		// constant 0 dB peak gain
		return biquadH(alpha, 0, -alpha, 1+alpha, -2*cos, 1-alpha)
	case filterNotch:
		return biquadH(1, -2*cos, 1, 1+alpha, -2*cos, 1-alpha)
	case filterAllpass:
		return biquadH(1-alpha, -2*cos, 1+alpha, 1+alpha, -2*cos, 1-alpha)
	case filterPeaking:
		return biquadH(1+alpha*A, -2*cos, 1-alpha*A, 1+alpha/A, -2*cos, 1-alpha/A)
	case filterLowShelf:
		sq := 2 * math.Sqrt(A) * alpha
		return biquadH(
			A*((A+1)-(A-1)*cos+sq),
			2*A*((A-1)-(A+1)*cos),
			A*((A+1)-(A-1)*cos-sq),
			(A+1)+(A-1)*cos+sq,
			-2*((A-1)+(A+1)*cos),
			(A+1)+(A-1)*cos-sq,
		)
	case filterHighShelf:
		sq := 2 * math.Sqrt(A) * alpha
		return biquadH(
			A*((A+1)+(A-1)*cos+sq),
			-2*A*((A-1)+(A+1)*cos),
			A*((A+1)+(A-1)*cos-sq),
			(A+1)-(A-1)*cos+sq,
			2*((A-1)-(A+1)*cos),
			(A+1)-(A-1)*cos-sq,
		)
	default:
		return [3]float64{1, 0, 0}, [2]float64{0, 0}
	}
}

// ----- Filter ----- //

// Filter is a biquad over a mono signal. Coefficients are computed when a
// parameter changes, never in Update.
type Filter struct {
	blockBase
	in         monoSource
	sampleRate float64
	kind       int
	freq       float64 // Hz
	q          float64
	gain       float64 // dB
	a          [3]float64 // feedforward
	b          [2]float64 // feedback
	past       [2]float64
	out        []float64
}

// NewFilter ...
func NewFilter(in monoSource, sampleRate float64) *Filter {
	f := &Filter{
		blockBase:  blockBase{enabled: true},
		in:         in,
		sampleRate: sampleRate,
		kind:       filterLowpass,
		freq:       8000,
		q:          0.707,
	}
	f.updateH()
	return f
}

func (f *Filter) updateH() {
	f.a, f.b = makeBiquadH(f.kind, f.freq/f.sampleRate, f.q, f.gain)
}

// Mono ...
func (f *Filter) Mono() []float64 {
	return f.out
}

// SetBlockSize ...
func (f *Filter) SetBlockSize(n int) {
	f.out = make([]float64, n)
}

// Update ...
func (f *Filter) Update() {
	in := f.in.Mono()
	if !f.enabled {
		copy(f.out, in)
		return
	}
	for i, x := range in {
		f.out[i] = f.processEach(x)
	}
}

// direct form II
func (f *Filter) processEach(in float64) float64 {
	in -= f.past[0]*f.b[0] + f.past[1]*f.b[1]
	o := in*f.a[0] + f.past[0]*f.a[1] + f.past[1]*f.a[2]
	f.past[1] = f.past[0]
	f.past[0] = in
	return o
}

func (f *Filter) validate(freq float64, q float64, gain float64) error {
	if freq <= 0 || freq >= f.sampleRate/2 {
		return fmt.Errorf("filter: freq must be in (0,%g): %g", f.sampleRate/2, freq)
	}
	if q <= 0 {
		return fmt.Errorf("filter: q must be > 0: %g", q)
	}
	if gain < -48 || gain > 48 {
		return fmt.Errorf("filter: gain must be in [-48,48]: %g", gain)
	}
	return nil
}

func (f *Filter) apply(kind int, freq float64, q float64, gain float64) error {
	if err := f.validate(freq, q, gain); err != nil {
		return err
	}
	if kind != f.kind {
		f.past = [2]float64{}
	}
	f.kind, f.freq, f.q, f.gain = kind, freq, q, gain
	f.updateH()
	return nil
}

func (f *Filter) set(key string, value string) error {
	kind, freq, q, gain := f.kind, f.freq, f.q, f.gain
	var err error
	switch key {
	case "kind":
		kind, err = filterKindFromString(value)
	case "freq":
		freq, err = parseFloatIn(value, 0, f.sampleRate)
	case "q":
		q, err = parseFloatIn(value, 0, 100)
	case "gain":
		gain, err = parseFloatIn(value, -48, 48)
	default:
		err = fmt.Errorf("unknown filter key %q", key)
	}
	if err != nil {
		return err
	}
	return f.apply(kind, freq, q, gain)
}

type filterJSON struct {
	Enabled bool    `json:"enabled"`
	Kind    string  `json:"kind"`
	Freq    float64 `json:"freq"`
	Q       float64 `json:"q"`
	Gain    float64 `json:"gain"`
}

func (f *Filter) prepareJSON(data json.RawMessage) (func(), error) {
	var j filterJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	kind, err := filterKindFromString(j.Kind)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if err := f.validate(j.Freq, j.Q, j.Gain); err != nil {
		return nil, err
	}
	return func() {
		if err := f.apply(kind, j.Freq, j.Q, j.Gain); err != nil {
			log.Printf("filter: %v\n", err)
		}
		f.enabled = j.Enabled
	}, nil
}

func (f *Filter) toJSON() json.RawMessage {
	return toRawMessage(&filterJSON{
		Enabled: f.enabled,
		Kind:    filterKindNames[f.kind],
		Freq:    f.freq,
		Q:       f.q,
		Gain:    f.gain,
	})
}

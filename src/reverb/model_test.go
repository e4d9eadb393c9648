package reverb

import (
	"math"
	"testing"
)

func expectNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
}

func TestNewModelValidation(t *testing.T) {
	for _, sr := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := NewModel(sr); err == nil {
			t.Errorf("expected error for sample rate %v", sr)
		}
	}
}

func TestModelLineLengths(t *testing.T) {
	m, err := NewModel(tuningSampleRate)
	expectNoError(t, err)
	total := 0
	for i := range m.combL {
		if len(m.combL[i].buffer) != combTuning[i] {
			t.Errorf("combL[%d]: expected %d, but got %d", i, combTuning[i], len(m.combL[i].buffer))
		}
		if len(m.combR[i].buffer) != combTuning[i]+stereoSpread {
			t.Errorf("combR[%d]: expected %d, but got %d", i, combTuning[i]+stereoSpread, len(m.combR[i].buffer))
		}
		total += len(m.combL[i].buffer) + len(m.combR[i].buffer)
	}
	for i := range m.allpassL {
		if len(m.allpassL[i].buffer) != allpassTuning[i] {
			t.Errorf("allpassL[%d]: expected %d, but got %d", i, allpassTuning[i], len(m.allpassL[i].buffer))
		}
		total += len(m.allpassL[i].buffer) + len(m.allpassR[i].buffer)
	}
	if total != len(m.slab) {
		t.Errorf("expected lines to cover the slab (%d), but got %d", len(m.slab), total)
	}

	m2, err := NewModel(2 * tuningSampleRate)
	expectNoError(t, err)
	if len(m2.combL[0].buffer) != 2*combTuning[0] {
		t.Errorf("expected scaled length %d, but got %d", 2*combTuning[0], len(m2.combL[0].buffer))
	}
}

func TestModelSetterValidation(t *testing.T) {
	m, err := NewModel(48000)
	expectNoError(t, err)
	setters := map[string]func(float64) error{
		"room":  m.SetRoomSize,
		"damp":  m.SetDamp,
		"wet":   m.SetWet,
		"dry":   m.SetDry,
		"width": m.SetWidth,
		"mode":  m.SetMode,
	}
	for name, set := range setters {
		for _, v := range []float64{-0.1, 1.1, math.NaN()} {
			if err := set(v); err == nil {
				t.Errorf("%s: expected error for %v", name, v)
			}
		}
		expectNoError(t, set(0.25))
	}
	if m.RoomSize() != 0.25 || m.Damp() != 0.25 || m.Wet() != 0.25 || m.Dry() != 0.25 || m.Width() != 0.25 {
		t.Errorf("getters do not reflect setters")
	}
}

func TestModelSetAll(t *testing.T) {
	m, err := NewModel(48000)
	expectNoError(t, err)
	before := m.Settings()
	bad := Settings{RoomSize: 0.9, Damp: 0.1, Wet: 3, Dry: 0.5, Width: 1}
	if err := m.SetAll(bad); err == nil {
		t.Errorf("expected error for out of range wet")
	}
	if m.Settings() != before {
		t.Errorf("expected rejected settings to change nothing, but got %+v", m.Settings())
	}
	good := Settings{RoomSize: 0.9, Damp: 0.1, Wet: 0.3, Dry: 0.5, Width: 1, Mode: 0}
	expectNoError(t, m.SetAll(good))
	if m.Settings() != good {
		t.Errorf("expected %+v, but got %+v", good, m.Settings())
	}
}

func TestModelCoefficients(t *testing.T) {
	m, err := NewModel(48000)
	expectNoError(t, err)
	expectNoError(t, m.SetRoomSize(1))
	expectNoError(t, m.SetDamp(1))
	for i := range m.combL {
		if fb := m.combL[i].Feedback(); math.Abs(fb-0.98) > 1e-12 {
			t.Errorf("expected feedback 0.98, but got %v", fb)
		}
		if d := m.combR[i].Damp(); math.Abs(d-0.4) > 1e-12 {
			t.Errorf("expected damp 0.4, but got %v", d)
		}
	}
	expectNoError(t, m.SetMode(1))
	if !m.Frozen() || m.gain != 0 || m.combL[0].Feedback() != 1 || m.combL[0].Damp() != 0 {
		t.Errorf("freeze mode not applied")
	}
	expectNoError(t, m.SetMode(0))
	if m.Frozen() || m.gain != fixedGain {
		t.Errorf("freeze mode not released")
	}
}

func TestModelSilence(t *testing.T) {
	m, err := NewModel(48000)
	expectNoError(t, err)
	in := make([]float64, 256)
	outL := make([]float64, 256)
	outR := make([]float64, 256)
	for n := 0; n < 10; n++ {
		m.ProcessReplace(in, in, outL, outR)
		for i := range outL {
			if outL[i] != 0 || outR[i] != 0 {
				t.Fatalf("expected silence, but got %v %v", outL[i], outR[i])
			}
		}
	}
}

func TestModelImpulseDecays(t *testing.T) {
	m, err := NewModel(48000)
	expectNoError(t, err)
	const block = 256
	inL := make([]float64, block)
	inR := make([]float64, block)
	outL := make([]float64, block)
	outR := make([]float64, block)
	inL[0] = 1
	inR[0] = 1

	early := 0.0
	late := 0.0
	for n := 0; n < 2000; n++ {
		m.ProcessReplace(inL, inR, outL, outR)
		inL[0], inR[0] = 0, 0
		for i := range outL {
			if math.IsNaN(outL[i]) || math.Abs(outL[i]) > 10 || math.Abs(outR[i]) > 10 {
				t.Fatalf("unbounded output at block %d: %v %v", n, outL[i], outR[i])
			}
			e := outL[i]*outL[i] + outR[i]*outR[i]
			if n < 100 {
				early += e
			} else if n >= 1900 {
				late += e
			}
		}
	}
	if early == 0 {
		t.Fatalf("expected a reverb tail")
	}
	if late >= early*1e-6 {
		t.Errorf("expected the tail to decay: early=%v late=%v", early, late)
	}
}

func TestModelMixAddsOntoOutput(t *testing.T) {
	a, err := NewModel(48000)
	expectNoError(t, err)
	b, err := NewModel(48000)
	expectNoError(t, err)
	expectNoError(t, a.SetDry(0.5))
	expectNoError(t, b.SetDry(0.5))

	in := make([]float64, 64)
	for i := range in {
		in[i] = math.Sin(float64(i) * 0.3)
	}
	replaceL := make([]float64, 64)
	replaceR := make([]float64, 64)
	a.ProcessReplace(in, in, replaceL, replaceR)

	mixL := make([]float64, 64)
	mixR := make([]float64, 64)
	for i := range mixL {
		mixL[i] = 1
		mixR[i] = -1
	}
	b.ProcessMix(in, in, mixL, mixR)
	for i := range mixL {
		if math.Abs(mixL[i]-(1+replaceL[i])) > 1e-12 || math.Abs(mixR[i]-(-1+replaceR[i])) > 1e-12 {
			t.Fatalf("sample %d: mix does not equal base + replace", i)
		}
	}
}

func TestModelInPlace(t *testing.T) {
	a, err := NewModel(48000)
	expectNoError(t, err)
	b, err := NewModel(48000)
	expectNoError(t, err)
	expectNoError(t, a.SetDry(1))
	expectNoError(t, b.SetDry(1))

	l := make([]float64, 128)
	r := make([]float64, 128)
	for i := range l {
		l[i] = math.Sin(float64(i) * 0.1)
		r[i] = math.Cos(float64(i) * 0.1)
	}
	outL := make([]float64, 128)
	outR := make([]float64, 128)
	a.ProcessReplace(l, r, outL, outR)
	b.ProcessReplace(l, r, l, r)
	for i := range l {
		if l[i] != outL[i] || r[i] != outR[i] {
			t.Fatalf("sample %d: in-place result differs", i)
		}
	}
}

func TestModelMute(t *testing.T) {
	m, err := NewModel(48000)
	expectNoError(t, err)
	in := make([]float64, 256)
	in[0] = 1
	out := make([]float64, 256)
	out2 := make([]float64, 256)
	m.ProcessReplace(in, in, out, out2)
	m.Mute()
	in[0] = 0
	for n := 0; n < 20; n++ {
		m.ProcessReplace(in, in, out, out2)
		for i := range out {
			if out[i] != 0 || out2[i] != 0 {
				t.Fatalf("expected silence after mute")
			}
		}
	}
}

func TestModelProcessDoesNotAllocate(t *testing.T) {
	m, err := NewModel(48000)
	expectNoError(t, err)
	l := make([]float64, 256)
	r := make([]float64, 256)
	allocs := testing.AllocsPerRun(20, func() {
		m.ProcessReplace(l, r, l, r)
	})
	if allocs != 0 {
		t.Errorf("expected no allocation, but got %v", allocs)
	}
}

package audio

import (
	"encoding/json"
	"math"
	"testing"
)

const testSampleRate = 48000.0

type constSource struct {
	buf []float64
}

func (c *constSource) Mono() []float64 {
	return c.buf
}

func (c *constSource) Stereo() ([]float64, []float64) {
	return c.buf, c.buf
}

func newConstSource(n int, value float64) *constSource {
	s := &constSource{buf: make([]float64, n)}
	for i := range s.buf {
		s.buf[i] = value
	}
	return s
}

func expectNear(t *testing.T, expected float64, actual float64, tolerance float64) {
	t.Helper()
	if math.Abs(expected-actual) > tolerance {
		t.Errorf("expected %v, but got %v", expected, actual)
	}
}

func TestFilterBypassAndLowpass(t *testing.T) {
	in := newConstSource(64, 0.5)
	f := NewFilter(in, testSampleRate)
	f.SetBlockSize(64)

	f.SetEnabled(false)
	f.Update()
	for _, v := range f.Mono() {
		expectNear(t, 0.5, v, 0)
	}

	f.SetEnabled(true)
	expectNoError(t, f.set("freq", "1000"))
	for i := 0; i < 100; i++ {
		f.Update()
	}
	// unity gain at DC
	expectNear(t, 0.5, f.Mono()[63], 1e-6)
}

func TestFilterRejects(t *testing.T) {
	f := NewFilter(newConstSource(8, 0), testSampleRate)
	before := f.toJSON()
	for _, kv := range [][2]string{
		{"kind", "formant"},
		{"freq", "30000"},
		{"freq", "0"},
		{"q", "0"},
		{"gain", "100"},
		{"unknown", "1"},
	} {
		if err := f.set(kv[0], kv[1]); err == nil {
			t.Errorf("%v: expected error", kv)
		}
	}
	if string(before) != string(f.toJSON()) {
		t.Errorf("expected settings untouched by rejected values")
	}
}

func TestFilterHighpassBlocksDC(t *testing.T) {
	f := NewFilter(newConstSource(256, 1), testSampleRate)
	f.SetBlockSize(256)
	expectNoError(t, f.set("kind", "highpass"))
	expectNoError(t, f.set("freq", "200"))
	for i := 0; i < 50; i++ {
		f.Update()
	}
	expectNear(t, 0, f.Mono()[255], 1e-6)
}

func TestDistortionBounded(t *testing.T) {
	d := NewDistortion(newConstSource(16, 3))
	d.SetBlockSize(16)
	d.Update()
	expectNear(t, 3, d.Mono()[0], 0)

	d.SetEnabled(true)
	expectNoError(t, d.set("drive", "10"))
	expectNoError(t, d.set("level", "0.5"))
	d.Update()
	for _, v := range d.Mono() {
		expectNear(t, 0.5*math.Tanh(30), v, 1e-12)
	}
	if err := d.set("drive", "0"); err == nil {
		t.Errorf("expected error for drive < 1")
	}
}

func TestDelayEcho(t *testing.T) {
	in := &constSource{buf: make([]float64, 64)}
	d := NewDelay(in, testSampleRate)
	d.SetBlockSize(64)
	d.SetEnabled(true)
	expectNoError(t, d.set("time", "10"))
	expectNoError(t, d.set("mix", "1"))
	expectNoError(t, d.set("feedbackGain", "0"))
	length := int(testSampleRate * 10 / 1000)

	in.buf[0] = 1
	got := make([]float64, 0, length+64)
	for len(got) < length+64 {
		d.Update()
		got = append(got, d.Mono()...)
		in.buf[0] = 0
	}
	expectNear(t, 1, got[0], 0)
	expectNear(t, 1, got[length], 0)
	for i, v := range got {
		if i != 0 && i != length && v != 0 {
			t.Fatalf("unexpected sample %v at %d", v, i)
		}
	}
}

func TestDelayResizeResetsLine(t *testing.T) {
	d := NewDelay(newConstSource(32, 1), testSampleRate)
	d.SetBlockSize(32)
	d.SetEnabled(true)
	d.Update()
	d.SetBlockSize(16)
	if d.line.cursor != 0 {
		t.Errorf("expected cursor reset, but got %d", d.line.cursor)
	}
	for _, v := range d.line.buf {
		if v != 0 {
			t.Fatalf("expected a cleared line")
		}
	}
}

func TestReverbBypassIsDryCopy(t *testing.T) {
	in := newConstSource(32, 0.25)
	r, err := NewReverbBlock(sourceBlock{in}, testSampleRate)
	expectNoError(t, err)
	r.SetBlockSize(32)
	r.Update()
	l, rr := r.Stereo()
	for i := range l {
		expectNear(t, 0.25, l[i], 0)
		expectNear(t, 0.25, rr[i], 0)
	}
}

func TestReverbReenableMutesTail(t *testing.T) {
	in := newConstSource(64, 0.5)
	r, err := NewReverbBlock(sourceBlock{in}, testSampleRate)
	expectNoError(t, err)
	r.SetBlockSize(64)
	r.SetEnabled(true)
	for i := 0; i < 100; i++ {
		r.Update()
	}
	r.SetEnabled(false)
	for i := range in.buf {
		in.buf[i] = 0
	}
	r.Update()
	r.SetEnabled(true)
	r.Update()
	l, rr := r.Stereo()
	for i := range l {
		if l[i] != 0 || rr[i] != 0 {
			t.Fatalf("expected silence after re-enable, but got %v/%v at %d", l[i], rr[i], i)
		}
	}
}

func TestReverbRejectsOutOfRange(t *testing.T) {
	r, err := NewReverbBlock(sourceBlock{newConstSource(8, 0)}, testSampleRate)
	expectNoError(t, err)
	if err := r.set("wet", "1.5"); err == nil {
		t.Errorf("expected error")
	}
	expectNoError(t, r.set("roomSize", "0.8"))
	expectNear(t, 0.8, r.Model().RoomSize(), 0)
}

func TestMixerGains(t *testing.T) {
	m := NewMixer(testSampleRate)
	m.AddInput(newConstSource(16, 0.5), 1)
	m.AddInput(newConstSource(16, 0.25), 2)
	m.SetBlockSize(16)
	m.Update()
	l, r := m.Stereo()
	for i := range l {
		expectNear(t, 1, l[i], 1e-12)
		expectNear(t, 1, r[i], 1e-12)
	}

	expectNoError(t, m.set("input1", "0"))
	expectNoError(t, m.set("gain", "0.5"))
	for i := 0; i < 100; i++ {
		m.Update()
	}
	l, _ = m.Stereo()
	expectNear(t, 0.25, l[15], 1e-12)

	m.SetEnabled(false)
	m.Update()
	l, _ = m.Stereo()
	for _, v := range l {
		expectNear(t, 0, v, 0)
	}
	if err := m.set("input5", "1"); err == nil {
		t.Errorf("expected error for unknown input")
	}
}

func TestOutputCopies(t *testing.T) {
	var shared SharedOutput
	o := NewOutput(newConstSource(8, 0.75), &shared)
	o.SetBlockSize(8)
	if len(shared.Left) != 8 || len(shared.Right) != 8 {
		t.Fatalf("expected shared buffers sized")
	}
	o.Update()
	expectNear(t, 0.75, shared.Left[7], 0)
	o.SetEnabled(false)
	o.Update()
	expectNear(t, 0, shared.Right[0], 0)
}

func TestVoicesLifecycle(t *testing.T) {
	v := NewVoices(testSampleRate)
	v.SetBlockSize(256)
	expectNoError(t, v.set("release", "0"))
	v.Update()
	for _, x := range v.Mono() {
		expectNear(t, 0, x, 0)
	}
	v.NoteOn(60, 1)
	v.NoteOn(60, 1)
	if v.Active() != 1 {
		t.Errorf("expected retrigger to reuse the voice, but got %d", v.Active())
	}
	v.Update()
	if peak(v.Mono()) == 0 {
		t.Errorf("expected sound after note on")
	}
	v.NoteOff(60)
	v.Update()
	if v.Active() != 0 {
		t.Errorf("expected voice returned to the pool, but got %d", v.Active())
	}
	for i := 0; i < maxPoly+4; i++ {
		v.NoteOn(i, 1)
	}
	if v.Active() != maxPoly {
		t.Errorf("expected %d voices, but got %d", maxPoly, v.Active())
	}
}

func applyJSON(p patchable, data json.RawMessage) error {
	commit, err := p.prepareJSON(data)
	if err != nil {
		return err
	}
	commit()
	return nil
}

func TestBlockJSON(t *testing.T) {
	d := NewDelay(newConstSource(8, 0), testSampleRate)
	expectNoError(t, applyJSON(d, json.RawMessage(`{"enabled":true,"time":120,"feedbackGain":0.5,"mix":0.4}`)))
	if !d.Enabled() || d.time != 120 || d.feedbackGain != 0.5 || d.mix != 0.4 {
		t.Errorf("unexpected delay %+v", d.toJSON())
	}
	if len(d.line.past) != int(testSampleRate*120/1000) {
		t.Errorf("unexpected line length %d", len(d.line.past))
	}
	if err := applyJSON(d, json.RawMessage(`{"enabled":true,"time":5000}`)); err == nil {
		t.Errorf("expected error for out of range time")
	}
	if d.time != 120 {
		t.Errorf("expected rejected settings to leave the delay untouched, but got time %v", d.time)
	}
}

func peak(buf []float64) float64 {
	p := 0.0
	for _, v := range buf {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

// sourceBlock lets a constSource stand as an upstream Block.
type sourceBlock struct {
	*constSource
}

func (sourceBlock) Update() {}

func (sourceBlock) SetBlockSize(int) {}

func (sourceBlock) Enabled() bool {
	return true
}

func (sourceBlock) SetEnabled(bool) {}

package reverb

import (
	"fmt"
	"math"
)

const (
	numCombs     = 8
	numAllpasses = 4

	fixedGain  = 0.015
	scaleWet   = 3.0
	scaleDry   = 2.0
	scaleDamp  = 0.4
	scaleRoom  = 0.28
	offsetRoom = 0.7

	initialRoom  = 0.5
	initialDamp  = 0.5
	initialWet   = 1 / scaleWet
	initialDry   = 0.0
	initialWidth = 1.0
	initialMode  = 0.0
	freezeMode   = 0.5

	allpassFeedback = 0.5
	stereoSpread    = 23

	tuningSampleRate = 44100.0
)

// delay lengths in samples at tuningSampleRate
var combTuning = [numCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
var allpassTuning = [numAllpasses]int{556, 441, 341, 225}

// Model is a stereo Freeverb instance. It owns the storage of every comb
// and allpass line of both channels.
type Model struct {
	sampleRate float64

	roomSize float64 // 0-1
	damp     float64 // 0-1
	wet      float64 // 0-1
	dry      float64 // 0-1
	width    float64 // 0-1
	mode     float64 // >= 0.5 freezes the tail

	gain float64
	wet1 float64
	wet2 float64

	combL    [numCombs]Comb
	combR    [numCombs]Comb
	allpassL [numAllpasses]Allpass
	allpassR [numAllpasses]Allpass

	slab []float64
}

// NewModel allocates a reverb with delay lines scaled to sampleRate.
func NewModel(sampleRate float64) (*Model, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("reverb sample rate must be > 0: %f", sampleRate)
	}
	m := &Model{
		sampleRate: sampleRate,
		roomSize:   initialRoom,
		damp:       initialDamp,
		wet:        initialWet,
		dry:        initialDry,
		width:      initialWidth,
		mode:       initialMode,
	}
	m.allocate()
	for i := range m.allpassL {
		m.allpassL[i].SetFeedback(allpassFeedback)
		m.allpassR[i].SetFeedback(allpassFeedback)
	}
	m.update()
	return m, nil
}

func scaledLength(tuning int, sampleRate float64) int {
	n := int(float64(tuning) * sampleRate / tuningSampleRate)
	if n < 1 {
		n = 1
	}
	return n
}

// allocate carves every line out of a single slab.
func (m *Model) allocate() {
	var lengths [2 * (numCombs + numAllpasses)]int
	total := 0
	k := 0
	for _, t := range combTuning {
		lengths[k] = scaledLength(t, m.sampleRate)
		lengths[k+1] = scaledLength(t+stereoSpread, m.sampleRate)
		total += lengths[k] + lengths[k+1]
		k += 2
	}
	for _, t := range allpassTuning {
		lengths[k] = scaledLength(t, m.sampleRate)
		lengths[k+1] = scaledLength(t+stereoSpread, m.sampleRate)
		total += lengths[k] + lengths[k+1]
		k += 2
	}
	m.slab = make([]float64, total)

	offset := 0
	take := func(n int) []float64 {
		buf := m.slab[offset : offset+n : offset+n]
		offset += n
		return buf
	}
	k = 0
	for i := range m.combL {
		m.combL[i].SetBuffer(take(lengths[k]))
		m.combR[i].SetBuffer(take(lengths[k+1]))
		k += 2
	}
	for i := range m.allpassL {
		m.allpassL[i].SetBuffer(take(lengths[k]))
		m.allpassR[i].SetBuffer(take(lengths[k+1]))
		k += 2
	}
}

// update recomputes derived gains and pushes them to the combs.
func (m *Model) update() {
	m.wet1 = m.wet * scaleWet * (m.width/2 + 0.5)
	m.wet2 = m.wet * scaleWet * ((1 - m.width) / 2)

	feedback := m.roomSize*scaleRoom + offsetRoom
	damp := m.damp * scaleDamp
	m.gain = fixedGain
	if m.mode >= freezeMode {
		feedback = 1
		damp = 0
		m.gain = 0
	}
	for i := range m.combL {
		m.combL[i].SetFeedback(feedback)
		m.combR[i].SetFeedback(feedback)
		m.combL[i].SetDamp(damp)
		m.combR[i].SetDamp(damp)
	}
}

// Mute clears every line. It has no effect while frozen.
func (m *Model) Mute() {
	if m.Frozen() {
		return
	}
	for i := range m.combL {
		m.combL[i].Mute()
		m.combR[i].Mute()
	}
	for i := range m.allpassL {
		m.allpassL[i].Mute()
		m.allpassR[i].Mute()
	}
}

// ProcessReplace renders the reverb of inL/inR into outL/outR.
// Outputs may alias inputs. All slices must have the same length.
func (m *Model) ProcessReplace(inL, inR, outL, outR []float64) {
	m.process(inL, inR, outL, outR, false)
}

// ProcessMix adds the reverb of inL/inR onto outL/outR.
func (m *Model) ProcessMix(inL, inR, outL, outR []float64) {
	m.process(inL, inR, outL, outR, true)
}

func (m *Model) process(inL, inR, outL, outR []float64, mix bool) {
	dry := m.dry * scaleDry
	for i := range outL {
		l, r := inL[i], inR[i]
		input := (l + r) * m.gain

		accL, accR := 0.0, 0.0
		for c := range m.combL {
			accL += m.combL[c].Process(input)
			accR += m.combR[c].Process(input)
		}
		for a := range m.allpassL {
			accL = m.allpassL[a].Process(accL)
			accR = m.allpassR[a].Process(accR)
		}

		yL := accL*m.wet1 + accR*m.wet2 + l*dry
		yR := accR*m.wet1 + accL*m.wet2 + r*dry
		if mix {
			outL[i] += yL
			outR[i] += yR
		} else {
			outL[i] = yL
			outR[i] = yR
		}
	}
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("reverb %s must be in [0,1]: %f", name, v)
	}
	return nil
}

// Settings holds every user control of the model.
type Settings struct {
	RoomSize float64
	Damp     float64
	Wet      float64
	Dry      float64
	Width    float64
	Mode     float64
}

// Validate reports the first control outside [0,1].
func (s Settings) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"room size", s.RoomSize},
		{"damp", s.Damp},
		{"wet", s.Wet},
		{"dry", s.Dry},
		{"width", s.Width},
		{"mode", s.Mode},
	} {
		if err := checkUnit(c.name, c.v); err != nil {
			return err
		}
	}
	return nil
}

// SetAll applies every control at once. On error m is left untouched.
func (m *Model) SetAll(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.roomSize = s.RoomSize
	m.damp = s.Damp
	m.wet = s.Wet
	m.dry = s.Dry
	m.width = s.Width
	m.mode = s.Mode
	m.update()
	return nil
}

// Settings ...
func (m *Model) Settings() Settings {
	return Settings{
		RoomSize: m.roomSize,
		Damp:     m.damp,
		Wet:      m.wet,
		Dry:      m.dry,
		Width:    m.width,
		Mode:     m.mode,
	}
}

// SetRoomSize ...
func (m *Model) SetRoomSize(v float64) error {
	if err := checkUnit("room size", v); err != nil {
		return err
	}
	m.roomSize = v
	m.update()
	return nil
}

// SetDamp ...
func (m *Model) SetDamp(v float64) error {
	if err := checkUnit("damp", v); err != nil {
		return err
	}
	m.damp = v
	m.update()
	return nil
}

// SetWet ...
func (m *Model) SetWet(v float64) error {
	if err := checkUnit("wet", v); err != nil {
		return err
	}
	m.wet = v
	m.update()
	return nil
}

// SetDry ...
func (m *Model) SetDry(v float64) error {
	if err := checkUnit("dry", v); err != nil {
		return err
	}
	m.dry = v
	return nil
}

// SetWidth ...
func (m *Model) SetWidth(v float64) error {
	if err := checkUnit("width", v); err != nil {
		return err
	}
	m.width = v
	m.update()
	return nil
}

// SetMode sets the freeze mode; values >= 0.5 hold the current tail forever.
func (m *Model) SetMode(v float64) error {
	if err := checkUnit("mode", v); err != nil {
		return err
	}
	m.mode = v
	m.update()
	return nil
}

// RoomSize ...
func (m *Model) RoomSize() float64 { return m.roomSize }

// Damp ...
func (m *Model) Damp() float64 { return m.damp }

// Wet ...
func (m *Model) Wet() float64 { return m.wet }

// Dry ...
func (m *Model) Dry() float64 { return m.dry }

// Width ...
func (m *Model) Width() float64 { return m.width }

// Mode ...
func (m *Model) Mode() float64 { return m.mode }

// Frozen ...
func (m *Model) Frozen() bool { return m.mode >= freezeMode }

// SampleRate ...
func (m *Model) SampleRate() float64 { return m.sampleRate }

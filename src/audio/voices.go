package audio

import (
	"encoding/json"
	"fmt"
	"log"
)

const (
	maxPoly = 32
	oscGain = 0.1
)

// ----- Voices ----- //

// Voices is a polyphonic oscillator bank. Each sounding note owns one voice
// taken from a fixed pool; a voice returns to the pool when its release
// ends.
type Voices struct {
	blockBase
	sampleRate float64
	oscParams  *oscParams
	adsrParams *adsrParams
	level      float64

	// pooled + active = maxPoly
	pooled []*voice
	active []*voice
	out    []float64
}

type voice struct {
	osc      osc
	adsr     adsr
	note     int
	velocity float64
}

// NewVoices ...
func NewVoices(sampleRate float64) *Voices {
	v := &Voices{
		blockBase:  blockBase{enabled: true},
		sampleRate: sampleRate,
		oscParams:  &oscParams{kind: waveSaw, level: 1.0},
		adsrParams: &adsrParams{attack: 10, decay: 100, sustain: 0.7, release: 200},
		level:      1.0,
		pooled:     make([]*voice, maxPoly),
		active:     make([]*voice, 0, maxPoly),
	}
	for i := range v.pooled {
		v.pooled[i] = &voice{}
	}
	return v
}

// NoteOn starts note, or retriggers it when it is already sounding.
// velocity is in [0,1].
func (v *Voices) NoteOn(note int, velocity float64) {
	for _, o := range v.active {
		if o.note == note {
			o.velocity = velocity
			o.adsr.noteOn()
			return
		}
	}
	lenPooled := len(v.pooled)
	if lenPooled == 0 {
		log.Println("maxPoly exceeded")
		return
	}
	o := v.pooled[lenPooled-1]
	v.pooled = v.pooled[:lenPooled-1]
	v.active = append(v.active, o)
	o.note = note
	o.velocity = velocity
	o.osc.initWithNote(v.oscParams, note, v.sampleRate)
	o.adsr.init(v.adsrParams, v.sampleRate)
	o.adsr.noteOn()
}

// NoteOff releases note.
func (v *Voices) NoteOff(note int) {
	for _, o := range v.active {
		if o.note == note && o.adsr.phase != phaseRelease {
			o.adsr.noteOff()
		}
	}
}

// Active returns the number of sounding voices.
func (v *Voices) Active() int {
	return len(v.active)
}

// Mono ...
func (v *Voices) Mono() []float64 {
	return v.out
}

// SetBlockSize ...
func (v *Voices) SetBlockSize(n int) {
	v.out = make([]float64, n)
}

// Update ...
func (v *Voices) Update() {
	if !v.enabled {
		for i := range v.out {
			v.out[i] = 0
		}
		return
	}
	gain := v.level * v.oscParams.level * oscGain
	for i := range v.out {
		sum := 0.0
		for _, o := range v.active {
			o.adsr.step()
			sum += o.osc.step() * o.adsr.value * o.velocity
		}
		v.out[i] = sum * gain
	}
	for j := len(v.active) - 1; j >= 0; j-- {
		o := v.active[j]
		if o.adsr.phase == phaseNone {
			v.active = append(v.active[:j], v.active[j+1:]...)
			v.pooled = append(v.pooled, o)
		}
	}
}

func (v *Voices) applyParams() {
	for _, o := range v.active {
		o.adsr.setParams(v.adsrParams)
	}
}

func (v *Voices) set(key string, value string) error {
	switch key {
	case "level":
		l, err := parseFloatIn(value, 0, 1)
		if err != nil {
			return err
		}
		v.level = l
	case "kind", "octave", "coarse", "fine":
		return v.oscParams.set(key, value)
	case "attack", "decay", "sustain", "release":
		if err := v.adsrParams.set(key, value); err != nil {
			return err
		}
		v.applyParams()
	default:
		return fmt.Errorf("unknown voices key %q", key)
	}
	return nil
}

type voicesJSON struct {
	Enabled bool            `json:"enabled"`
	Level   float64         `json:"level"`
	Osc     json.RawMessage `json:"osc"`
	Adsr    json.RawMessage `json:"adsr"`
}

func (v *Voices) prepareJSON(data json.RawMessage) (func(), error) {
	var j voicesJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("voices: %w", err)
	}
	if j.Level < 0 || j.Level > 1 {
		return nil, fmt.Errorf("voices: level must be in [0,1]: %g", j.Level)
	}
	osc, err := parseOscJSON(j.Osc)
	if err != nil {
		return nil, err
	}
	env, err := parseAdsrJSON(j.Adsr)
	if err != nil {
		return nil, err
	}
	return func() {
		*v.oscParams = osc
		*v.adsrParams = env
		v.enabled = j.Enabled
		v.level = j.Level
		v.applyParams()
	}, nil
}

func (v *Voices) toJSON() json.RawMessage {
	return toRawMessage(&voicesJSON{
		Enabled: v.enabled,
		Level:   v.level,
		Osc:     v.oscParams.toJSON(),
		Adsr:    v.adsrParams.toJSON(),
	})
}

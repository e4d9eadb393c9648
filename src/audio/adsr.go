package audio

import (
	"encoding/json"
	"fmt"
	"math"
)

// ----- ADSR Params ----- //

const (
	phaseNone = iota
	phaseAttack
	phaseDecay
	phaseSustain
	phaseRelease
)

type adsrParams struct {
	attack  float64 // ms
	decay   float64 // ms
	sustain float64 // 0-1
	release float64 // ms
}

type adsrJSON struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

func parseAdsrJSON(data json.RawMessage) (adsrParams, error) {
	var j adsrJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return adsrParams{}, fmt.Errorf("adsr: %w", err)
	}
	if j.Attack < 0 || j.Decay < 0 || j.Release < 0 || j.Sustain < 0 || j.Sustain > 1 {
		return adsrParams{}, fmt.Errorf("adsr: out of range %+v", j)
	}
	return adsrParams{
		attack:  j.Attack,
		decay:   j.Decay,
		sustain: j.Sustain,
		release: j.Release,
	}, nil
}

func (a *adsrParams) toJSON() json.RawMessage {
	return toRawMessage(&adsrJSON{
		Attack:  a.attack,
		Decay:   a.decay,
		Sustain: a.sustain,
		Release: a.release,
	})
}

func (a *adsrParams) set(key string, value string) error {
	switch key {
	case "attack":
		v, err := parseFloatIn(value, 0, 10000)
		if err != nil {
			return err
		}
		a.attack = v
	case "decay":
		v, err := parseFloatIn(value, 0, 10000)
		if err != nil {
			return err
		}
		a.decay = v
	case "sustain":
		v, err := parseFloatIn(value, 0, 1)
		if err != nil {
			return err
		}
		a.sustain = v
	case "release":
		v, err := parseFloatIn(value, 0, 10000)
		if err != nil {
			return err
		}
		a.release = v
	default:
		return fmt.Errorf("unknown adsr key %q", key)
	}
	return nil
}

// ----- ADSR ----- //

/*
  1 +     x
    |    / \
    |   /   \
  s +  /     x------x
    | /              \
    |/                \
  0 +-----+--+------+---
    |a    |d |      |r |
*/
type adsr struct {
	msPerSample    float64
	attack         float64 // ms
	decay          float64 // ms
	sustain        float64 // 0-1
	release        float64 // ms
	value          float64
	phase          int
	phasePos       int
	valueAtNoteOn  float64
	valueAtNoteOff float64
}

func (a *adsr) init(p *adsrParams, sampleRate float64) {
	a.msPerSample = 1000 / sampleRate
	a.setParams(p)
	a.value = 0
	a.phase = phaseNone
	a.phasePos = 0
	a.valueAtNoteOn = 0
	a.valueAtNoteOff = 0
}

func (a *adsr) setParams(p *adsrParams) {
	a.attack = p.attack
	a.decay = p.decay
	a.sustain = p.sustain
	a.release = p.release
}

func (a *adsr) noteOn() {
	a.phase = phaseAttack
	a.phasePos = 0
	a.valueAtNoteOn = a.value
}

func (a *adsr) noteOff() {
	a.phase = phaseRelease
	a.phasePos = 0
	a.valueAtNoteOff = a.value
}

func (a *adsr) step() {
	phaseTime := float64(a.phasePos) * a.msPerSample
	switch a.phase {
	case phaseAttack:
		if phaseTime >= a.attack {
			a.phase = phaseDecay
			a.phasePos = 0
			a.value = 1
		} else {
			t := phaseTime / a.attack
			a.value = t + (1-t)*a.valueAtNoteOn
			a.phasePos++
		}
	case phaseDecay:
		ended := a.decay == 0
		if !ended {
			a.value = setTargetAtTime(1, a.sustain, phaseTime/a.decay)
			ended = math.Abs(a.value-a.sustain) < 0.001
		}
		if ended {
			a.phase = phaseSustain
			a.phasePos = 0
			a.value = a.sustain
		} else {
			a.phasePos++
		}
	case phaseSustain:
		a.value = a.sustain
	case phaseRelease:
		ended := a.release == 0
		if !ended {
			a.value = setTargetAtTime(a.valueAtNoteOff, 0, phaseTime/a.release)
			ended = a.value < 0.001
		}
		if ended {
			a.phase = phaseNone
			a.phasePos = 0
			a.value = 0
		} else {
			a.phasePos++
		}
	default:
		a.value = 0
	}
}

package audio

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// ----- Wave Kind ----- //

const (
	waveSine = iota
	waveTriangle
	waveSquare
	wavePulse
	waveSaw
	waveSawRev
	waveNoise
	numWaveKinds
)

var waveKindNames = [numWaveKinds]string{
	"sine",
	"triangle",
	"square",
	"pulse",
	"saw",
	"saw-rev",
	"noise",
}

func waveKindFromString(s string) (int, error) {
	for i, name := range waveKindNames {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown wave kind %q", s)
}

func waveKindToString(kind int) string {
	if kind < 0 || kind >= numWaveKinds {
		return "sine"
	}
	return waveKindNames[kind]
}

// ----- OSC Params ----- //

type oscParams struct {
	kind   int
	octave int     // -2 ~ 2
	coarse int     // -12 ~ 12
	fine   int     // -100 ~ 100 cent
	level  float64 // 0 ~ 1
}

type oscJSON struct {
	Kind   string  `json:"kind"`
	Octave int     `json:"octave"`
	Coarse int     `json:"coarse"`
	Fine   int     `json:"fine"`
	Level  float64 `json:"level"`
}

func parseOscJSON(data json.RawMessage) (oscParams, error) {
	var j oscJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return oscParams{}, fmt.Errorf("osc: %w", err)
	}
	kind, err := waveKindFromString(j.Kind)
	if err != nil {
		return oscParams{}, fmt.Errorf("osc: %w", err)
	}
	return oscParams{
		kind:   kind,
		octave: j.Octave,
		coarse: j.Coarse,
		fine:   j.Fine,
		level:  j.Level,
	}, nil
}

func (o *oscParams) toJSON() json.RawMessage {
	return toRawMessage(&oscJSON{
		Kind:   waveKindToString(o.kind),
		Octave: o.octave,
		Coarse: o.coarse,
		Fine:   o.fine,
		Level:  o.level,
	})
}

func (o *oscParams) set(key string, value string) error {
	switch key {
	case "kind":
		kind, err := waveKindFromString(value)
		if err != nil {
			return err
		}
		o.kind = kind
	case "octave":
		v, err := parseIntIn(value, -2, 2)
		if err != nil {
			return err
		}
		o.octave = v
	case "coarse":
		v, err := parseIntIn(value, -12, 12)
		if err != nil {
			return err
		}
		o.coarse = v
	case "fine":
		v, err := parseIntIn(value, -100, 100)
		if err != nil {
			return err
		}
		o.fine = v
	case "level":
		v, err := parseFloatIn(value, 0, 1)
		if err != nil {
			return err
		}
		o.level = v
	default:
		return fmt.Errorf("unknown osc key %q", key)
	}
	return nil
}

// ----- OSC ----- //

type osc struct {
	kind  int
	freq  float64
	delta float64 // phase increment per sample
	phase float64
}

func noteWithParamsToFreq(p *oscParams, note int) float64 {
	return noteToFreq(note) * math.Pow(2, float64(p.octave)+float64(p.coarse)/12+float64(p.fine)/100/12)
}

func (o *osc) initWithNote(p *oscParams, note int, sampleRate float64) {
	o.kind = p.kind
	o.freq = noteWithParamsToFreq(p, note)
	o.delta = 2.0 * math.Pi * o.freq / sampleRate
	o.phase = rand.Float64() * 2.0 * math.Pi
}

func (o *osc) step() float64 {
	value := 0.0
	p := o.phase / (2.0 * math.Pi)
	switch o.kind {
	case waveSine:
		value = math.Sin(o.phase)
	case waveTriangle:
		if p < 0.5 {
			value = p*4 - 1
		} else {
			value = p*(-4) + 3
		}
	case waveSquare:
		if p < 0.5 {
			value = 1
		} else {
			value = -1
		}
	case wavePulse:
		if p < 0.25 {
			value = 1
		} else {
			value = -1
		}
	case waveSaw:
		value = p*2 - 1
	case waveSawRev:
		value = p*(-2) + 1
	case waveNoise:
		value = rand.Float64()*2 - 1
	}
	o.phase = positiveMod(o.phase+o.delta, 2.0*math.Pi)
	return value
}

func parseFloatIn(value string, min float64, max float64) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if v < min || v > max || math.IsNaN(v) {
		return 0, fmt.Errorf("value must be in [%g,%g]: %g", min, max, v)
	}
	return v, nil
}

func parseIntIn(value string, min int, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value must be in [%d,%d]: %d", min, max, v)
	}
	return v, nil
}

package audio

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-vecmath"
)

const gainRampTime = 0.01 // sec

// ----- Mixer ----- //

type mixerInput struct {
	src  stereoSource
	gain float64
}

// Mixer sums stereo inputs with per-input gains and a smoothed master gain.
// A disabled mixer writes silence.
type Mixer struct {
	blockBase
	sampleRate float64
	inputs     []*mixerInput
	master     transitiveValue
	sumL       []float64
	sumR       []float64
	tmp        []float64
	outL       []float64
	outR       []float64
}

// NewMixer ...
func NewMixer(sampleRate float64) *Mixer {
	m := &Mixer{
		blockBase:  blockBase{enabled: true},
		sampleRate: sampleRate,
	}
	m.master.init(1)
	return m
}

// AddInput adds a stereo upstream and returns its index.
func (m *Mixer) AddInput(src stereoSource, gain float64) int {
	m.inputs = append(m.inputs, &mixerInput{src: src, gain: gain})
	return len(m.inputs) - 1
}

// Stereo ...
func (m *Mixer) Stereo() ([]float64, []float64) {
	return m.outL, m.outR
}

// SetBlockSize ...
func (m *Mixer) SetBlockSize(n int) {
	m.sumL = make([]float64, n)
	m.sumR = make([]float64, n)
	m.tmp = make([]float64, n)
	m.outL = make([]float64, n)
	m.outR = make([]float64, n)
}

// Update ...
func (m *Mixer) Update() {
	if !m.enabled {
		zero(m.outL)
		zero(m.outR)
		return
	}
	zero(m.sumL)
	zero(m.sumR)
	for _, input := range m.inputs {
		l, r := input.src.Stereo()
		vecmath.ScaleBlock(m.tmp, l, input.gain)
		vecmath.AddBlockInPlace(m.sumL, m.tmp)
		vecmath.ScaleBlock(m.tmp, r, input.gain)
		vecmath.AddBlockInPlace(m.sumR, m.tmp)
	}
	if !m.master.moving() {
		vecmath.ScaleBlock(m.outL, m.sumL, m.master.value)
		vecmath.ScaleBlock(m.outR, m.sumR, m.master.value)
		return
	}
	for i := range m.outL {
		g := m.master.step()
		m.outL[i] = m.sumL[i] * g
		m.outR[i] = m.sumR[i] * g
	}
}

func zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}

func (m *Mixer) setMaster(gain float64) {
	m.master.linear(int(gainRampTime*m.sampleRate), gain)
}

// keys: "gain" for the master, "input<N>" for input N
func (m *Mixer) set(key string, value string) error {
	v, err := parseFloatIn(value, 0, 4)
	if err != nil {
		return err
	}
	if key == "gain" {
		m.setMaster(v)
		return nil
	}
	if strings.HasPrefix(key, "input") {
		i, err := strconv.Atoi(strings.TrimPrefix(key, "input"))
		if err != nil || i < 0 || i >= len(m.inputs) {
			return fmt.Errorf("unknown mixer input %q", key)
		}
		m.inputs[i].gain = v
		return nil
	}
	return fmt.Errorf("unknown mixer key %q", key)
}

type mixerJSON struct {
	Enabled bool      `json:"enabled"`
	Gain    float64   `json:"gain"`
	Inputs  []float64 `json:"inputs"`
}

func (m *Mixer) prepareJSON(data json.RawMessage) (func(), error) {
	var j mixerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("mixer: %w", err)
	}
	if len(j.Inputs) != len(m.inputs) {
		return nil, fmt.Errorf("mixer: expected %d inputs, got %d", len(m.inputs), len(j.Inputs))
	}
	if j.Gain < 0 || j.Gain > 4 {
		return nil, fmt.Errorf("mixer: gain must be in [0,4]: %g", j.Gain)
	}
	for _, g := range j.Inputs {
		if g < 0 || g > 4 {
			return nil, fmt.Errorf("mixer: input gain must be in [0,4]: %g", g)
		}
	}
	return func() {
		for i, g := range j.Inputs {
			m.inputs[i].gain = g
		}
		m.enabled = j.Enabled
		m.setMaster(j.Gain)
	}, nil
}

func (m *Mixer) toJSON() json.RawMessage {
	inputs := make([]float64, len(m.inputs))
	for i, input := range m.inputs {
		inputs[i] = input.gain
	}
	return toRawMessage(&mixerJSON{
		Enabled: m.enabled,
		Gain:    m.master.targetValue,
		Inputs:  inputs,
	})
}

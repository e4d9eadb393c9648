package audio

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// ----- Distortion ----- //

// Distortion is a tanh waveshaper.
type Distortion struct {
	blockBase
	in    monoSource
	drive float64 // 1 ~ 100
	level float64 // 0 ~ 1
	out   []float64
}

// NewDistortion ...
func NewDistortion(in monoSource) *Distortion {
	return &Distortion{
		in:    in,
		drive: 1,
		level: 1,
	}
}

// Mono ...
func (d *Distortion) Mono() []float64 {
	return d.out
}

// SetBlockSize ...
func (d *Distortion) SetBlockSize(n int) {
	d.out = make([]float64, n)
}

// Update ...
func (d *Distortion) Update() {
	in := d.in.Mono()
	if !d.enabled {
		copy(d.out, in)
		return
	}
	vecmath.ScaleBlock(d.out, in, d.drive)
	for i, x := range d.out {
		d.out[i] = math.Tanh(x) * d.level
	}
}

func (d *Distortion) set(key string, value string) error {
	switch key {
	case "drive":
		v, err := parseFloatIn(value, 1, 100)
		if err != nil {
			return err
		}
		d.drive = v
	case "level":
		v, err := parseFloatIn(value, 0, 1)
		if err != nil {
			return err
		}
		d.level = v
	default:
		return fmt.Errorf("unknown distortion key %q", key)
	}
	return nil
}

type distortionJSON struct {
	Enabled bool    `json:"enabled"`
	Drive   float64 `json:"drive"`
	Level   float64 `json:"level"`
}

func (d *Distortion) prepareJSON(data json.RawMessage) (func(), error) {
	var j distortionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("distortion: %w", err)
	}
	if j.Drive < 1 || j.Drive > 100 || j.Level < 0 || j.Level > 1 {
		return nil, fmt.Errorf("distortion: out of range %+v", j)
	}
	return func() {
		d.enabled = j.Enabled
		d.drive = j.Drive
		d.level = j.Level
	}, nil
}

func (d *Distortion) toJSON() json.RawMessage {
	return toRawMessage(&distortionJSON{
		Enabled: d.enabled,
		Drive:   d.drive,
		Level:   d.level,
	})
}

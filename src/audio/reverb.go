package audio

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/jinjor/rtsynth/src/reverb"
)

// ----- Reverb ----- //

// ReverbBlock runs a stereo reverb model over a mono or stereo upstream.
// When disabled it copies the dry signal and leaves the model untouched;
// enabling it again mutes the stale tail first.
type ReverbBlock struct {
	blockBase
	mono   monoSource
	stereo stereoSource
	model  *reverb.Model
	outL   []float64
	outR   []float64
}

// NewReverbBlock ...
// in must be a mono or a stereo block.
func NewReverbBlock(in Block, sampleRate float64) (*ReverbBlock, error) {
	model, err := reverb.NewModel(sampleRate)
	if err != nil {
		return nil, err
	}
	r := &ReverbBlock{model: model}
	switch src := in.(type) {
	case stereoSource:
		r.stereo = src
	case monoSource:
		r.mono = src
	default:
		return nil, fmt.Errorf("reverb: upstream %T has no output", in)
	}
	if err := model.SetWet(0.3); err != nil {
		return nil, err
	}
	if err := model.SetDry(0.5); err != nil {
		return nil, err
	}
	return r, nil
}

// Model ...
func (r *ReverbBlock) Model() *reverb.Model {
	return r.model
}

// SetEnabled ...
func (r *ReverbBlock) SetEnabled(enabled bool) {
	if enabled && !r.enabled {
		r.model.Mute()
	}
	r.enabled = enabled
}

// Stereo ...
func (r *ReverbBlock) Stereo() ([]float64, []float64) {
	return r.outL, r.outR
}

// SetBlockSize ...
func (r *ReverbBlock) SetBlockSize(n int) {
	r.outL = make([]float64, n)
	r.outR = make([]float64, n)
}

// Update ...
func (r *ReverbBlock) Update() {
	var inL, inR []float64
	if r.stereo != nil {
		inL, inR = r.stereo.Stereo()
	} else {
		inL = r.mono.Mono()
		inR = inL
	}
	if !r.enabled {
		copy(r.outL, inL)
		copy(r.outR, inR)
		return
	}
	r.model.ProcessReplace(inL, inR, r.outL, r.outR)
}

func (r *ReverbBlock) set(key string, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	switch key {
	case "roomSize":
		return r.model.SetRoomSize(v)
	case "damp":
		return r.model.SetDamp(v)
	case "wet":
		return r.model.SetWet(v)
	case "dry":
		return r.model.SetDry(v)
	case "width":
		return r.model.SetWidth(v)
	case "mode":
		return r.model.SetMode(v)
	}
	return fmt.Errorf("unknown reverb key %q", key)
}

type reverbJSON struct {
	Enabled  bool    `json:"enabled"`
	RoomSize float64 `json:"roomSize"`
	Damp     float64 `json:"damp"`
	Wet      float64 `json:"wet"`
	Dry      float64 `json:"dry"`
	Width    float64 `json:"width"`
	Mode     float64 `json:"mode"`
}

func (r *ReverbBlock) prepareJSON(data json.RawMessage) (func(), error) {
	var j reverbJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("reverb: %w", err)
	}
	settings := reverb.Settings{
		RoomSize: j.RoomSize,
		Damp:     j.Damp,
		Wet:      j.Wet,
		Dry:      j.Dry,
		Width:    j.Width,
		Mode:     j.Mode,
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return func() {
		if err := r.model.SetAll(settings); err != nil {
			log.Printf("reverb: %v\n", err)
		}
		r.SetEnabled(j.Enabled)
	}, nil
}

func (r *ReverbBlock) toJSON() json.RawMessage {
	m := r.model
	return toRawMessage(&reverbJSON{
		Enabled:  r.enabled,
		RoomSize: m.RoomSize(),
		Damp:     m.Damp(),
		Wet:      m.Wet(),
		Dry:      m.Dry(),
		Width:    m.Width(),
		Mode:     m.Mode(),
	})
}

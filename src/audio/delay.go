package audio

import (
	"encoding/json"
	"fmt"
)

const (
	minDelayTime = 10   // ms
	maxDelayTime = 2000 // ms
)

// ----- Delay Line ----- //

type delayLine struct {
	cursor int
	buf    []float64 // sized for maxDelayTime
	past   []float64 // buf[:length]
}

func (d *delayLine) setLength(length int) {
	if length < 1 {
		length = 1
	}
	if length > len(d.buf) {
		length = len(d.buf)
	}
	d.past = d.buf[:length]
	if d.cursor >= len(d.past) {
		d.cursor = 0
	}
}

func (d *delayLine) reset() {
	for i := range d.buf {
		d.buf[i] = 0
	}
	d.cursor = 0
}

func (d *delayLine) step(in float64) {
	d.past[d.cursor] = in
	d.cursor++
	if d.cursor >= len(d.past) {
		d.cursor = 0
	}
}

func (d *delayLine) getDelayed() float64 {
	return d.past[d.cursor]
}

// ----- Delay ----- //

// Delay is a feedback echo over a mono signal.
type Delay struct {
	blockBase
	in           monoSource
	sampleRate   float64
	line         delayLine
	time         float64 // ms
	feedbackGain float64 // [0,1)
	mix          float64 // [0,1]
	out          []float64
}

// NewDelay ...
func NewDelay(in monoSource, sampleRate float64) *Delay {
	d := &Delay{
		in:           in,
		sampleRate:   sampleRate,
		line:         delayLine{buf: make([]float64, int(sampleRate*maxDelayTime/1000))},
		time:         300,
		feedbackGain: 0.3,
		mix:          0.3,
	}
	d.line.setLength(d.length(d.time))
	return d
}

func (d *Delay) length(millis float64) int {
	return int(d.sampleRate * millis / 1000)
}

// Mono ...
func (d *Delay) Mono() []float64 {
	return d.out
}

// SetBlockSize ...
func (d *Delay) SetBlockSize(n int) {
	d.out = make([]float64, n)
	d.line.reset()
}

// Update ...
func (d *Delay) Update() {
	in := d.in.Mono()
	if !d.enabled {
		copy(d.out, in)
		return
	}
	for i, x := range in {
		delayed := d.line.getDelayed()
		d.line.step(x + delayed*d.feedbackGain)
		d.out[i] = x + delayed*d.mix
	}
}

func (d *Delay) set(key string, value string) error {
	switch key {
	case "time":
		v, err := parseFloatIn(value, minDelayTime, maxDelayTime)
		if err != nil {
			return err
		}
		d.time = v
		d.line.setLength(d.length(v))
	case "feedbackGain":
		v, err := parseFloatIn(value, 0, 0.99)
		if err != nil {
			return err
		}
		d.feedbackGain = v
	case "mix":
		v, err := parseFloatIn(value, 0, 1)
		if err != nil {
			return err
		}
		d.mix = v
	default:
		return fmt.Errorf("unknown delay key %q", key)
	}
	return nil
}

type delayJSON struct {
	Enabled      bool    `json:"enabled"`
	Time         float64 `json:"time"`
	FeedbackGain float64 `json:"feedbackGain"`
	Mix          float64 `json:"mix"`
}

func (d *Delay) prepareJSON(data json.RawMessage) (func(), error) {
	var j delayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	if j.Time < minDelayTime || j.Time > maxDelayTime ||
		j.FeedbackGain < 0 || j.FeedbackGain > 0.99 ||
		j.Mix < 0 || j.Mix > 1 {
		return nil, fmt.Errorf("delay: out of range %+v", j)
	}
	return func() {
		d.enabled = j.Enabled
		d.time = j.Time
		d.feedbackGain = j.FeedbackGain
		d.mix = j.Mix
		d.line.setLength(d.length(j.Time))
	}, nil
}

func (d *Delay) toJSON() json.RawMessage {
	return toRawMessage(&delayJSON{
		Enabled:      d.enabled,
		Time:         d.time,
		FeedbackGain: d.feedbackGain,
		Mix:          d.mix,
	})
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jinjor/rtsynth/src/rt"
)

// Duration is a time.Duration written as "5ms" in JSON.
type Duration time.Duration

// UnmarshalJSON ...
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"5ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON ...
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ----- Sections ----- //

type Audio struct {
	SampleRate int `json:"sampleRate"`
	BlockSize  int `json:"blockSize"`
	Channels   int `json:"channels"`
}

type Serial struct {
	Enabled     bool   `json:"enabled"`
	Port        int    `json:"port"`
	Device      string `json:"device,omitempty"`
	Baud        int    `json:"baud"`
	Mode        string `json:"mode"`
	FlowControl bool   `json:"flowControl"`
}

type MIDIOut struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
}

type MIDIIn struct {
	Enabled bool `json:"enabled"`
}

type Bridge struct {
	PollInterval Duration `json:"pollInterval"`
	MaxBytes     int      `json:"maxBytes"`
}

// Realtime maps role names (e.g. "midi-out") to SCHED_RR priorities.
// Roles missing from Priorities keep their default.
type Realtime struct {
	Enabled    bool           `json:"enabled"`
	Priorities map[string]int `json:"priorities,omitempty"`
}

// Config is the whole process configuration.
type Config struct {
	Audio    Audio    `json:"audio"`
	Serial   Serial   `json:"serial"`
	MIDIOut  MIDIOut  `json:"midiOut"`
	MIDIIn   MIDIIn   `json:"midiIn"`
	Bridge   Bridge   `json:"bridge"`
	Realtime Realtime `json:"realtime"`
}

// Default ...
func Default() *Config {
	return &Config{
		Audio: Audio{
			SampleRate: 48000,
			BlockSize:  256,
			Channels:   2,
		},
		Serial: Serial{
			Baud: 31250,
			Mode: "8N1",
		},
		MIDIOut: MIDIOut{
			Name: "rtsynth",
		},
		Bridge: Bridge{
			PollInterval: Duration(5 * time.Millisecond),
			MaxBytes:     1024,
		},
	}
}

// Load reads a JSON file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Validate ...
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sampleRate must be in [8000,192000]: %d", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("audio.blockSize must be > 0: %d", c.Audio.BlockSize)
	}
	if c.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 2: %d", c.Audio.Channels)
	}
	if c.Serial.Enabled && c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be > 0: %d", c.Serial.Baud)
	}
	if c.Bridge.PollInterval <= 0 {
		return fmt.Errorf("bridge.pollInterval must be > 0: %v", time.Duration(c.Bridge.PollInterval))
	}
	if c.Bridge.MaxBytes <= 0 {
		return fmt.Errorf("bridge.maxBytes must be > 0: %d", c.Bridge.MaxBytes)
	}
	if _, err := c.PriorityTable(); err != nil {
		return err
	}
	return nil
}

// PriorityTable builds the realtime table from the defaults and the
// configured overrides.
func (c *Config) PriorityTable() (rt.Table, error) {
	table := rt.DefaultTable()
	for name, p := range c.Realtime.Priorities {
		role, err := rt.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("realtime.priorities: %w", err)
		}
		table[role] = p
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("realtime.priorities: %w", err)
	}
	return table, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"
)

// TrackSelection picks tracks relative to the performer's track
type TrackSelection string

const (
	TracksSolo  TrackSelection = "solo"  // the performer's own track
	TracksOther TrackSelection = "other" // every other track
	TracksBoth  TrackSelection = "both"
)

// Includes reports whether track is selected when performer plays
func (s TrackSelection) Includes(track, performer int) bool {
	switch s {
	case TracksSolo:
		return track == performer
	case TracksOther:
		return track != performer
	case TracksBoth:
		return true
	}
	return false
}

func (s TrackSelection) valid() bool {
	return s == TracksSolo || s == TracksOther || s == TracksBoth
}

// ControllerKind names a continuous controller on input or output
type ControllerKind string

const (
	ChannelPressure ControllerKind = "channelPressure"
	PolyPressure    ControllerKind = "polyPressure"
	PitchWheel      ControllerKind = "pitchWheel"
	ModWheel        ControllerKind = "modWheel"
	Volume          ControllerKind = "volume"     // CC 7, output only
	Expression      ControllerKind = "expression" // CC 11, output only
)

// IsSource reports whether the kind can be received from the keyboard
func (k ControllerKind) IsSource() bool {
	switch k {
	case ChannelPressure, PolyPressure, PitchWheel, ModWheel:
		return true
	}
	return false
}

// IsTarget reports whether the kind can be sent to the synth
func (k ControllerKind) IsTarget() bool {
	return k.IsSource() || k == Volume || k == Expression
}

// ControllerRoute forwards a live controller onto score tracks
type ControllerRoute struct {
	Source ControllerKind `json:"source" yaml:"source"`
	Target ControllerKind `json:"target,omitempty" yaml:"target,omitempty"` // defaults to Source
	Tracks TrackSelection `json:"tracks" yaml:"tracks"`
}

// TargetKind returns the kind sent out
func (r ControllerRoute) TargetKind() ControllerKind {
	if r.Target == "" {
		return r.Source
	}
	return r.Target
}

// OverrideConfig substitutes the performer's pitch/velocity into the score
type OverrideConfig struct {
	Pitch    bool           `json:"pitch" yaml:"pitch"`
	Velocity bool           `json:"velocity" yaml:"velocity"`
	Tracks   TrackSelection `json:"tracks" yaml:"tracks"`
}

// Enabled reports whether any override applies
func (o OverrideConfig) Enabled() bool {
	return o.Pitch || o.Velocity
}

// InputConfig defines the performer's keyboard
type InputConfig struct {
	PortName string `json:"portName,omitempty" yaml:"portName,omitempty"` // substring match, empty = any
}

// SynthOutputConfig defines the synth MIDI output
type SynthOutputConfig struct {
	PortName string `json:"portName,omitempty" yaml:"portName,omitempty"`
}

// PerformanceConfig tunes the engine
type PerformanceConfig struct {
	Performer   int               `json:"performer" yaml:"performer"` // track index, -1 plays unassisted
	PrequeueMs  float64           `json:"prequeueMs" yaml:"prequeueMs"`
	Override    OverrideConfig    `json:"override" yaml:"override"`
	Controllers []ControllerRoute `json:"controllers,omitempty" yaml:"controllers,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Input       InputConfig       `json:"input,omitempty" yaml:"input,omitempty"`
	SynthOutput SynthOutputConfig `json:"synthOutput,omitempty" yaml:"synthOutput,omitempty"`
	Performance PerformanceConfig `json:"performance" yaml:"performance"`
	Debug       bool              `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Performance: PerformanceConfig{
			Override: OverrideConfig{
				Tracks: TracksSolo,
			},
			Controllers: []ControllerRoute{
				{Source: ChannelPressure, Tracks: TracksSolo},
				{Source: PolyPressure, Tracks: TracksSolo},
				{Source: PitchWheel, Tracks: TracksSolo},
				{Source: ModWheel, Tracks: TracksSolo},
			},
		},
	}
}

// Validate rejects settings the engine cannot honor
func (c *Config) Validate() error {
	p := c.Performance
	if p.Performer < -1 || p.Performer > 15 {
		return fmt.Errorf("performance.performer: %d out of range -1..15", p.Performer)
	}
	if p.PrequeueMs < 0 {
		return fmt.Errorf("performance.prequeueMs: %v must not be negative", p.PrequeueMs)
	}
	if !p.Override.Tracks.valid() {
		return fmt.Errorf("performance.override.tracks: unknown selection %q", p.Override.Tracks)
	}
	for i, r := range p.Controllers {
		if !r.Source.IsSource() {
			return fmt.Errorf("performance.controllers[%d].source: unknown controller %q", i, r.Source)
		}
		if !r.TargetKind().IsTarget() {
			return fmt.Errorf("performance.controllers[%d].target: unknown controller %q", i, r.Target)
		}
		if !r.Tracks.valid() {
			return fmt.Errorf("performance.controllers[%d].tracks: unknown selection %q", i, r.Tracks)
		}
	}
	return nil
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-assist"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a JSON or YAML (.yaml, .yml) config. Missing fields keep
// their defaults; a missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fault.Wrap(err, fmsg.WithDesc("read config", "Could not read config file "+path))
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("parse config", "Config file "+path+" is not valid"),
			ftag.With(ftag.InvalidArgument))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("validate config", fmt.Sprintf("Config file %s: %v", path, err)),
			ftag.With(ftag.InvalidArgument))
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config as indented JSON
func (c *Config) SaveFile(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Route returns the route for a live controller, if any
func (p *PerformanceConfig) Route(source ControllerKind) *ControllerRoute {
	for i := range p.Controllers {
		if p.Controllers[i].Source == source {
			return &p.Controllers[i]
		}
	}
	return nil
}

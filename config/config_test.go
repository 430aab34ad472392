package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Southclaws/fault/ftag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "assist.yaml", `
input:
  portName: piano
synthOutput:
  portName: FluidSynth
performance:
  performer: 2
  prequeueMs: 4
  override:
    pitch: true
    tracks: both
  controllers:
    - source: channelPressure
      target: volume
      tracks: other
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Input.PortName != "piano" || cfg.SynthOutput.PortName != "FluidSynth" {
		t.Fatalf("ports = %q %q", cfg.Input.PortName, cfg.SynthOutput.PortName)
	}
	p := cfg.Performance
	if p.Performer != 2 || p.PrequeueMs != 4 {
		t.Fatalf("performer %d prequeue %v", p.Performer, p.PrequeueMs)
	}
	if !p.Override.Pitch || p.Override.Velocity || p.Override.Tracks != TracksBoth {
		t.Fatalf("override = %+v", p.Override)
	}
	if len(p.Controllers) != 1 {
		t.Fatalf("controllers = %d, want 1", len(p.Controllers))
	}
	r := p.Route(ChannelPressure)
	if r == nil || r.TargetKind() != Volume || r.Tracks != TracksOther {
		t.Fatalf("route = %+v", r)
	}
}

func TestLoadFileJSONKeepsDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"synthOutput": {"portName": "IAC"}}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SynthOutput.PortName != "IAC" {
		t.Fatalf("port = %q", cfg.SynthOutput.PortName)
	}
	if len(cfg.Performance.Controllers) != 4 || cfg.Performance.Override.Tracks != TracksSolo {
		t.Fatalf("defaults lost: %+v", cfg.Performance)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Performance.Performer != 0 {
		t.Fatalf("performer = %d, want default 0", cfg.Performance.Performer)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"bad json", "c.json", `{"performance": `},
		{"bad selection", "c.yaml", "performance:\n  override:\n    tracks: everyone\n"},
		{"bad source", "c.yaml", "performance:\n  controllers:\n    - source: volume\n      tracks: solo\n"},
		{"bad target", "c.json", `{"performance": {"controllers": [{"source": "modWheel", "target": "pan", "tracks": "solo"}]}}`},
		{"negative prequeue", "c.json", `{"performance": {"prequeueMs": -1}}`},
		{"performer out of range", "c.yml", "performance:\n  performer: 16\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := ftag.Get(err); got != ftag.InvalidArgument {
				t.Fatalf("tag = %v, want %v", got, ftag.InvalidArgument)
			}
		})
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Performance.Performer = 3
	cfg.Performance.Controllers[3].Target = Expression
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Performance.Performer != 3 {
		t.Fatalf("performer = %d, want 3", got.Performance.Performer)
	}
	if r := got.Performance.Route(ModWheel); r == nil || r.TargetKind() != Expression {
		t.Fatalf("route = %+v", r)
	}
}

func TestRoute(t *testing.T) {
	p := DefaultConfig().Performance
	p.Controllers = []ControllerRoute{
		{Source: PitchWheel, Tracks: TracksSolo},
		{Source: ModWheel, Target: Volume, Tracks: TracksOther},
	}
	if r := p.Route(ModWheel); r == nil || r.TargetKind() != Volume {
		t.Fatalf("route = %+v", r)
	}
	if r := p.Route(PitchWheel); r == nil || r.TargetKind() != PitchWheel {
		t.Fatalf("route = %+v, want pitch wheel onto itself", r)
	}
	if r := p.Route(ChannelPressure); r != nil {
		t.Fatalf("route = %+v, want nil for an unrouted controller", r)
	}
	// routes point into the config, so edits are seen by later lookups
	p.Route(ModWheel).Tracks = TracksBoth
	if r := p.Route(ModWheel); r.Tracks != TracksBoth {
		t.Fatalf("tracks = %v, want %v", r.Tracks, TracksBoth)
	}
}

func TestTrackSelection(t *testing.T) {
	tests := []struct {
		sel              TrackSelection
		track, performer int
		want             bool
	}{
		{TracksSolo, 2, 2, true},
		{TracksSolo, 1, 2, false},
		{TracksOther, 1, 2, true},
		{TracksOther, 2, 2, false},
		{TracksBoth, 9, 2, true},
		{"", 2, 2, false},
	}
	for _, tt := range tests {
		if got := tt.sel.Includes(tt.track, tt.performer); got != tt.want {
			t.Errorf("%q.Includes(%d, %d) = %v, want %v", tt.sel, tt.track, tt.performer, got, tt.want)
		}
	}
}

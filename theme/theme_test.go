package theme

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Southclaws/fault/ftag"
)

const gpl = `GIMP Palette
Name: test
Columns: 2
#
  0   0   0	black
255 255 255	white
300   0   0	out of range
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(gpl))
	if err != nil {
		t.Fatalf("ParseGPL: %v", err)
	}
	if p.Name != "test" {
		t.Fatalf("name = %q, want test", p.Name)
	}
	if len(p.Colors) != 2 {
		t.Fatalf("colors = %v, want 2 entries", p.Colors)
	}
}

func TestParseGPLEmpty(t *testing.T) {
	_, err := ParseGPL(strings.NewReader("GIMP Palette\nName: empty\n"))
	if err == nil {
		t.Fatal("expected an error for a palette without colors")
	}
	if tag := ftag.Get(err); tag != ftag.InvalidArgument {
		t.Fatalf("tag = %v, want %v", tag, ftag.InvalidArgument)
	}
}

func TestLoadGPLMissing(t *testing.T) {
	_, err := LoadGPL(filepath.Join(t.TempDir(), "none.gpl"))
	if tag := ftag.Get(err); tag != ftag.NotFound {
		t.Fatalf("tag = %v, want %v", tag, ftag.NotFound)
	}
}

func TestLookup(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}
	tests := []struct {
		norm float64
		want RGB
	}{
		{-1, RGB{0, 0, 0}},
		{0, RGB{0, 0, 0}},
		{0.5, RGB{100, 50, 25}},
		{1, RGB{200, 100, 50}},
		{2, RGB{200, 100, 50}},
	}
	for _, tt := range tests {
		if got := p.Lookup(tt.norm); got != tt.want {
			t.Fatalf("Lookup(%v) = %v, want %v", tt.norm, got, tt.want)
		}
	}
}

func TestStateColors(t *testing.T) {
	th := New(nil)
	if th.State("running") == th.State("stopped") {
		t.Fatal("running and stopped share a color")
	}
	if th.State("unknown") != th.Muted() {
		t.Fatalf("unknown state = %v, want muted %v", th.State("unknown"), th.Muted())
	}
}

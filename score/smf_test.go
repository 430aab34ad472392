package score

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func testSMF() *smf.SMF {
	var solo smf.Track
	solo = append(solo,
		smf.Event{Delta: 0, Message: smf.MetaTempo(120)},
		smf.Event{Delta: 960, Message: smf.Message(gomidi.NoteOn(0, 60, 100))},
		smf.Event{Delta: 0, Message: smf.Message(gomidi.NoteOn(0, 64, 100))},
		smf.Event{Delta: 480, Message: smf.Message(gomidi.NoteOff(0, 60))},
		smf.Event{Delta: 240, Message: smf.Message(gomidi.NoteOff(0, 64))},
	)
	solo.Close(240)

	var bass smf.Track
	bass = append(bass,
		smf.Event{Delta: 0, Message: smf.Message(gomidi.NoteOn(1, 36, 90))},
		smf.Event{Delta: 1920, Message: smf.Message(gomidi.NoteOff(1, 36))},
	)
	bass.Close(0)

	return &smf.SMF{
		TimeFormat: smf.MetricTicks(960),
		Tracks:     []smf.Track{solo, bass},
	}
}

func TestFromSMF(t *testing.T) {
	tl, err := FromSMF(testSMF())
	if err != nil {
		t.Fatalf("FromSMF: %v", err)
	}
	if tl.EndMs != 1000 {
		t.Fatalf("EndMs = %v, want 1000", tl.EndMs)
	}

	solo := tl.Tracks[0].Moments
	if len(solo) != 4 {
		t.Fatalf("solo moments = %d, want 4", len(solo))
	}
	want := []struct {
		ts          float64
		msgs        int
		chord, rest bool
		position    float64
	}{
		{0, 0, false, true, 0},
		{500, 2, true, false, 500},
		{750, 1, false, false, NoPosition},
		{875, 1, false, true, 875},
	}
	for i, w := range want {
		m := solo[i]
		if m.Timestamp != w.ts || len(m.Messages) != w.msgs || m.ChordStart != w.chord || m.RestStart != w.rest || m.Position != w.position {
			t.Errorf("solo[%d] = ts %v msgs %d chord %v rest %v pos %v, want %+v",
				i, m.Timestamp, len(m.Messages), m.ChordStart, m.RestStart, m.Position, w)
		}
	}

	bass := tl.Tracks[1].Moments
	if len(bass) != 2 || bass[0].Timestamp != 0 || !bass[0].ChordStart || bass[1].Timestamp != 1000 {
		t.Fatalf("bass moments = %+v", bass)
	}
}

func TestFromSMFSplits(t *testing.T) {
	tl, err := FromSMF(testSMF())
	if err != nil {
		t.Fatal(err)
	}
	segs, err := Split(tl, 0, 500, tl.EndMs)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(segs) != 2 || !segs[0].IsChord() || !segs[1].IsRest() {
		t.Fatalf("segments = %d", len(segs))
	}
	// the bass note-off sits on the final barline
	if n := segs[1].Tracks[1].Len(); n != 1 {
		t.Fatalf("final segment bass moments = %d, want 1", n)
	}
}

func TestTempoMap(t *testing.T) {
	tm := tempoMap{resolution: 960}
	tm.add(0, 120)
	tm.add(960, 60)

	tests := []struct {
		tick int64
		want float64
	}{
		{0, 0},
		{480, 250},
		{960, 500},
		{1440, 1000},
	}
	for _, tt := range tests {
		if got := tm.ms(tt.tick); got != tt.want {
			t.Errorf("ms(%d) = %v, want %v", tt.tick, got, tt.want)
		}
	}
}

func TestFromSMFRejectsUnknownTimeFormat(t *testing.T) {
	_, err := FromSMF(&smf.SMF{})
	if err == nil {
		t.Fatal("expected error for missing time format")
	}
	if got := ftag.Get(err); got != ftag.InvalidArgument {
		t.Fatalf("tag = %v, want %v", got, ftag.InvalidArgument)
	}
}

func TestReadSMFMissingFile(t *testing.T) {
	_, err := ReadSMF(filepath.Join(t.TempDir(), "missing.mid"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrMomentOrder) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}

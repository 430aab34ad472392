package sequencer

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-assist/score"
)

func newTestPlayer(prequeue float64) (*Player, *fakeClock, *recordingOutput) {
	clock := &fakeClock{}
	out := &recordingOutput{clock: clock}
	return NewPlayer(out, clock, prequeue), clock, out
}

func sequenceOf(t *testing.T, final bool, endMs float64, moments map[int][]*score.Moment) *score.Sequence {
	t.Helper()
	s := score.NewSequence(score.Chord, 0)
	s.EndMs = endMs
	s.Final = final
	for ch, ms := range moments {
		for _, m := range ms {
			if err := s.Tracks[ch].AddMoment(m); err != nil {
				t.Fatal(err)
			}
		}
	}
	return s
}

func TestPlayerTieBreaksByTrack(t *testing.T) {
	p, clock, out := newTestPlayer(0)
	seq := sequenceOf(t, true, 100, map[int][]*score.Moment{
		2: {score.NewMoment(10, gomidi.NoteOn(2, 40, 1))},
		0: {score.NewMoment(10, gomidi.NoteOn(0, 60, 1))},
		1: {score.NewMoment(5, gomidi.NoteOn(1, 50, 1))},
	})
	p.Start(seq, nil)
	clock.Advance(100)

	out.expect(t, gomidi.NoteOn(1, 50, 1), gomidi.NoteOn(0, 60, 1), gomidi.NoteOn(2, 40, 1))
	if p.Active() {
		t.Fatal("player still active after the last moment")
	}
}

func TestPlayerSegmentEnd(t *testing.T) {
	tests := []struct {
		name  string
		final bool
		want  int
	}{
		{"moment at the end belongs to the next segment", false, 1},
		{"final segment plays its barline moment", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, clock, out := newTestPlayer(0)
			seq := sequenceOf(t, tt.final, 500, map[int][]*score.Moment{
				0: {
					score.NewMoment(0, gomidi.NoteOn(0, 60, 100)),
					score.NewMoment(500, gomidi.NoteOff(0, 60)),
				},
			})
			p.Start(seq, nil)
			clock.Advance(1000)
			if len(out.sent) != tt.want {
				t.Fatalf("sent %d messages, want %d", len(out.sent), tt.want)
			}
		})
	}
}

func TestPlayerMutedTrack(t *testing.T) {
	p, clock, out := newTestPlayer(0)
	seq := sequenceOf(t, true, 100, map[int][]*score.Moment{
		0: {score.NewMoment(0, gomidi.NoteOn(0, 60, 100))},
		1: {score.NewMoment(0, gomidi.NoteOn(1, 48, 100))},
	})
	p.Start(seq, []bool{true, false})
	clock.Advance(100)
	out.expect(t, gomidi.NoteOn(0, 60, 100))
}

func TestPlayerPrequeue(t *testing.T) {
	p, clock, out := newTestPlayer(10)
	seq := sequenceOf(t, true, 200, map[int][]*score.Moment{
		0: {score.NewMoment(100, gomidi.NoteOn(0, 60, 100))},
	})
	p.Start(seq, nil)

	clock.Advance(89)
	if len(out.sent) != 0 {
		t.Fatalf("sent before the prequeue window")
	}
	clock.Advance(1)
	out.expect(t, gomidi.NoteOn(0, 60, 100))
	if s := out.sent[0]; s.now != 90 || s.at != 100 {
		t.Fatalf("sent at %v stamped %v, want 90 stamped 100", s.now, s.at)
	}
	if d := p.MaxDeviation(); d != 0 {
		t.Fatalf("max deviation = %v, want 0 for an early send", d)
	}
}

func TestPlayerStopReleasesVoices(t *testing.T) {
	p, clock, out := newTestPlayer(0)
	seq := sequenceOf(t, true, 1000, map[int][]*score.Moment{
		0: {
			score.NewMoment(0, gomidi.NoteOn(0, 60, 100), gomidi.NoteOn(0, 64, 100)),
			score.NewMoment(1000, gomidi.NoteOff(0, 60), gomidi.NoteOff(0, 64)),
		},
		3: {score.NewMoment(0, gomidi.NoteOn(3, 36, 100))},
	})
	p.Start(seq, nil)
	clock.Advance(10)
	p.Stop()
	clock.Advance(2000)

	out.expect(t,
		gomidi.NoteOn(0, 60, 100),
		gomidi.NoteOn(0, 64, 100),
		gomidi.NoteOn(3, 36, 100),
		gomidi.NoteOff(0, 60),
		gomidi.NoteOff(0, 64),
		gomidi.NoteOff(3, 36),
	)
	if clock.pending() != 0 {
		t.Fatalf("pending timers after stop = %d", clock.pending())
	}
}

func TestPlayerFinishSilentlySkipsNoteStarts(t *testing.T) {
	p, clock, out := newTestPlayer(0)
	seq := sequenceOf(t, true, 1000, map[int][]*score.Moment{
		0: {
			score.NewMoment(0, gomidi.NoteOn(0, 60, 100)),
			score.NewMoment(300, gomidi.NoteOn(0, 62, 100), gomidi.ControlChange(0, 64, 127)),
			score.NewMoment(600, gomidi.NoteOff(0, 60), gomidi.NoteOff(0, 62)),
		},
	})
	p.Start(seq, nil)
	clock.Advance(100)
	p.FinishSilently()

	out.expect(t,
		gomidi.NoteOn(0, 60, 100),
		gomidi.ControlChange(0, 64, 127),
		gomidi.NoteOff(0, 60),
		gomidi.NoteOff(0, 62),
	)
	for _, s := range out.sent[1:] {
		if s.now != 100 {
			t.Fatalf("flushed message sent at %v, want 100", s.now)
		}
	}
	if p.Active() {
		t.Fatal("player still active after finishing")
	}
}

func TestPlayerPauseResume(t *testing.T) {
	p, clock, out := newTestPlayer(0)
	seq := sequenceOf(t, true, 1000, map[int][]*score.Moment{
		0: {
			score.NewMoment(0, gomidi.NoteOn(0, 60, 100)),
			score.NewMoment(400, gomidi.NoteOff(0, 60)),
		},
	})
	p.Start(seq, nil)
	clock.Advance(100)
	p.Pause()
	p.Pause()
	clock.Advance(1000)
	p.Resume()
	clock.Advance(299)
	if len(out.sent) != 1 {
		t.Fatalf("sent %d messages before the shifted due time, want 1", len(out.sent))
	}
	clock.Advance(1)
	out.expect(t, gomidi.NoteOn(0, 60, 100), gomidi.NoteOff(0, 60))
	if at := out.sent[1].at; at != 1400 {
		t.Fatalf("note-off stamped %v, want 1400", at)
	}
}

func TestLoopRunsCallbacksInOrder(t *testing.T) {
	l := newLoop(&fakeClock{})
	var order []string
	l.do(func() {
		l.notify(func() {
			order = append(order, "a")
			// re-entering from a callback must not deadlock
			l.do(func() {
				l.notify(func() { order = append(order, "c") })
			})
			order = append(order, "a2")
		})
		l.notify(func() { order = append(order, "b") })
	})

	want := []string{"a", "a2", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestVoices(t *testing.T) {
	v := newVoices()
	v.handle(gomidi.NoteOn(1, 60, 100))
	v.handle(gomidi.NoteOn(1, 60, 100))
	v.handle(gomidi.NoteOn(0, 72, 100))
	v.handle(gomidi.NoteOn(1, 60, 0)) // velocity 0 ends one of them
	v.handle(gomidi.NoteOff(2, 10))   // never started
	v.handle(gomidi.ControlChange(1, 7, 100))

	if !v.sounding() {
		t.Fatal("sounding = false, want true")
	}
	got := v.release()
	want := []gomidi.Message{gomidi.NoteOff(0, 72), gomidi.NoteOff(1, 60)}
	if len(got) != len(want) {
		t.Fatalf("release = %v, want %v", got, want)
	}
	for i := range want {
		if string(got[i]) != string(want[i]) {
			t.Fatalf("release[%d] = % X, want % X", i, []byte(got[i]), []byte(want[i]))
		}
	}
	if v.sounding() {
		t.Fatal("still sounding after release")
	}
}

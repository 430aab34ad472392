package sequencer

import (
	"bytes"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-assist/score"
)

// fakeClock fires timers synchronously from Advance
type fakeClock struct {
	now    float64
	timers []*fakeTimer
}

type fakeTimer struct {
	at   float64
	f    func()
	done bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.done
	t.done = true
	return was
}

func (c *fakeClock) Now() float64 { return c.now }

func (c *fakeClock) AfterFunc(ms float64, f func()) Timer {
	if ms < 0 {
		ms = 0
	}
	t := &fakeTimer{at: c.now + ms, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(ms float64) {
	target := c.now + ms
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if !t.done && t.at <= target && (next == nil || t.at < next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.done = true
		if next.at > c.now {
			c.now = next.at
		}
		next.f()
	}
	c.now = target
}

func (c *fakeClock) pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

type sentMsg struct {
	msg []byte
	at  float64 // timestamp passed to Send
	now float64 // clock when sent
}

// recordingOutput keeps everything sent to it
type recordingOutput struct {
	clock *fakeClock
	sent  []sentMsg
}

func (o *recordingOutput) Send(msg gomidi.Message, timestampMs float64) {
	o.sent = append(o.sent, sentMsg{msg: append([]byte(nil), msg...), at: timestampMs, now: o.clock.now})
}

func (o *recordingOutput) count(msg gomidi.Message) int {
	n := 0
	for _, s := range o.sent {
		if bytes.Equal(s.msg, msg) {
			n++
		}
	}
	return n
}

func (o *recordingOutput) expect(t *testing.T, want ...gomidi.Message) {
	t.Helper()
	if len(o.sent) != len(want) {
		t.Fatalf("sent %d messages, want %d: %v", len(o.sent), len(want), o.sent)
	}
	for i, w := range want {
		if !bytes.Equal(o.sent[i].msg, w) {
			t.Fatalf("sent[%d] = % X, want % X", i, o.sent[i].msg, []byte(w))
		}
	}
}

type endCall struct {
	rec      *score.Sequence
	duration float64
}

type harness struct {
	clock     *fakeClock
	out       *recordingOutput
	perf      *Performance
	positions []float64
	ends      []endCall
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{}}
	h.out = &recordingOutput{clock: h.clock}
	base := []Option{
		WithClock(h.clock),
		WithOutput(h.out),
		WithPositionReporter(func(ms float64) { h.positions = append(h.positions, ms) }),
		WithEndOfPerformance(func(rec *score.Sequence, d float64) { h.ends = append(h.ends, endCall{rec, d}) }),
	}
	h.perf = New(append(base, opts...)...)
	return h
}

func (h *harness) input(t *testing.T, msg gomidi.Message) {
	t.Helper()
	if err := h.perf.HandleInput(msg, h.clock.now); err != nil {
		t.Fatalf("HandleInput(% X): %v", []byte(msg), err)
	}
}

func (h *harness) at(ms float64) {
	h.clock.Advance(ms - h.clock.now)
}

// testTimeline has the performer on channel 0:
// chord [0,500) rest [500,1000) chord [1000,1500) rest [1500,2000).
// Channel 1 holds a note from 0 to 1200, across the first rest.
func testTimeline(t *testing.T) *score.Sequence {
	t.Helper()
	tl := score.NewSequence(score.Whole, 0)
	tl.EndMs = 2000
	add := func(ch int, ts float64, msg gomidi.Message, chord, rest bool) {
		m := score.NewMoment(ts, msg)
		if chord || rest {
			m.Position = ts
		}
		m.ChordStart, m.RestStart = chord, rest
		if err := tl.Tracks[ch].AddMoment(m); err != nil {
			t.Fatal(err)
		}
	}
	add(0, 0, gomidi.NoteOn(0, 60, 100), true, false)
	add(0, 500, gomidi.NoteOff(0, 60), false, true)
	add(0, 1000, gomidi.NoteOn(0, 62, 100), true, false)
	add(0, 1500, gomidi.NoteOff(0, 62), false, true)
	add(1, 0, gomidi.NoteOn(1, 48, 80), false, false)
	add(1, 1200, gomidi.NoteOff(1, 48), false, false)
	return tl
}

func assertMonotonic(t *testing.T, positions []float64) {
	t.Helper()
	for i := 1; i < len(positions); i++ {
		if positions[i] < positions[i-1] {
			t.Fatalf("positions not monotonic: %v", positions)
		}
	}
}

func assertFloats(t *testing.T, name string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
	}
}

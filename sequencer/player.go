package sequencer

import (
	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"

	"go-assist/debug"
	"go-assist/midi"
	"go-assist/score"
)

// Dispatcher sends the moments of one sequence at a time, in time order
type Dispatcher interface {
	Start(seq *score.Sequence, enabled []bool)
	Pause()
	Resume()
	Stop()
	FinishSilently()
	Active() bool
	MaxDeviation() float64
}

var _ Dispatcher = (*Player)(nil)

// playerSink receives what the player does. Called with the loop held.
type playerSink interface {
	position(ms float64)
	record(track int, msg gomidi.Message, atMs float64)
	ended()
}

type nopSink struct{}

func (nopSink) position(float64)                    {}
func (nopSink) record(int, gomidi.Message, float64) {}
func (nopSink) ended()                              {}

// trackCursor is the playback state of one track of the playing sequence
type trackCursor struct {
	performing bool
	from       int
	to         int
	current    int
}

type cued struct {
	track  int
	moment *score.Moment
}

// Player walks a sequence across all performing tracks, arming a one-shot
// timer for the next due moment after every tick.
type Player struct {
	loop     *loop
	out      midi.Output
	sink     playerSink
	prequeue float64

	seq     *score.Sequence
	cursors []trackCursor
	current *cued
	base    float64 // wall ms of sequence time 0

	timer    Timer
	gen      int
	running  bool
	paused   bool
	pausedAt float64

	maxDeviation float64
	voices       *voices
}

// NewPlayer creates a standalone player sending to out
func NewPlayer(out midi.Output, clock Clock, prequeueMs float64) *Player {
	return newPlayer(newLoop(clock), out, nopSink{}, prequeueMs)
}

func newPlayer(l *loop, out midi.Output, sink playerSink, prequeueMs float64) *Player {
	if prequeueMs < 0 {
		prequeueMs = 0
	}
	return &Player{
		loop:     l,
		out:      out,
		sink:     sink,
		prequeue: prequeueMs,
		voices:   newVoices(),
	}
}

func (p *Player) Start(seq *score.Sequence, enabled []bool) {
	p.loop.do(func() { p.start(seq, enabled) })
}

func (p *Player) Pause() {
	p.loop.do(p.pause)
}

func (p *Player) Resume() {
	p.loop.do(p.resume)
}

func (p *Player) Stop() {
	p.loop.do(p.stop)
}

func (p *Player) FinishSilently() {
	p.loop.do(p.finishSilently)
}

// Active reports whether a sequence is being dispatched
func (p *Player) Active() bool {
	var active bool
	p.loop.do(func() { active = p.running })
	return active
}

// MaxDeviation returns the largest lateness of a sent moment in ms
func (p *Player) MaxDeviation() float64 {
	var d float64
	p.loop.do(func() { d = p.maxDeviation })
	return d
}

func (p *Player) start(seq *score.Sequence, enabled []bool) {
	p.cancel()
	p.seq = seq
	p.cursors = make([]trackCursor, len(seq.Tracks))
	for i, t := range seq.Tracks {
		on := i >= len(enabled) || enabled[i]
		p.cursors[i] = trackCursor{
			performing: on && t.Len() > 0,
			from:       0,
			to:         t.Len(),
			current:    0,
		}
	}
	p.base = p.loop.now()
	p.running = true
	p.current = p.nextMoment()
	debug.L().Debug("segment start",
		zap.String("kind", seq.Kind.String()),
		zap.Float64("position", seq.PositionMs),
		zap.Bool("final", seq.Final))
	if !p.paused {
		p.tick()
	}
}

// nextMoment returns the earliest pending moment across performing tracks,
// lowest track first on ties, and advances that track. A moment at or past
// the end of a non-final sequence belongs to the next one.
func (p *Player) nextMoment() *cued {
	best := -1
	for i := range p.cursors {
		c := &p.cursors[i]
		if !c.performing || c.current >= c.to {
			continue
		}
		if best < 0 || p.seq.Tracks[i].Moments[c.current].Timestamp < p.seq.Tracks[best].Moments[p.cursors[best].current].Timestamp {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	m := p.seq.Tracks[best].Moments[p.cursors[best].current]
	if !p.seq.Final && m.Timestamp >= p.seq.EndMs {
		return nil
	}
	p.cursors[best].current++
	return &cued{track: best, moment: m}
}

func (p *Player) tick() {
	for p.current != nil {
		at := p.base + p.current.moment.Timestamp
		now := p.loop.now()
		delay := at - now
		if delay > p.prequeue {
			p.arm(delay - p.prequeue)
			return
		}
		if dev := now - at; dev > p.maxDeviation {
			p.maxDeviation = dev
		}
		p.send(p.current, at, true)
		p.current = p.nextMoment()
	}
	p.finish()
}

func (p *Player) arm(delay float64) {
	gen := p.gen
	p.timer = p.loop.after(delay, func() {
		if gen != p.gen || !p.running || p.paused {
			return
		}
		p.tick()
	})
}

// cancel invalidates any armed timer, including one already firing
func (p *Player) cancel() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Player) send(c *cued, at float64, report bool) {
	now := p.loop.now()
	for _, msg := range c.moment.Messages {
		if !report {
			if _, _, _, ok := score.NoteStart(msg); ok {
				continue
			}
		}
		p.out.Send(msg, at)
		p.voices.handle(msg)
		p.sink.record(c.track, msg, now)
	}
	if report && c.moment.HasPosition() {
		p.sink.position(c.moment.Position)
	}
}

// finish ends a sequence that ran out of moments
func (p *Player) finish() {
	p.cancel()
	p.running = false
	p.current = nil
	p.sink.ended()
}

func (p *Player) pause() {
	if p.paused {
		return
	}
	p.cancel()
	p.paused = true
	p.pausedAt = p.loop.now()
}

// pausedMoment is the moment sent first on resume
func (p *Player) pausedMoment() *score.Moment {
	if !p.paused || p.current == nil {
		return nil
	}
	return p.current.moment
}

func (p *Player) resume() {
	if !p.paused {
		return
	}
	p.base += p.loop.now() - p.pausedAt
	p.paused = false
	if p.running {
		p.tick()
	}
}

// finishSilently flushes what is left of the sequence at once, skipping note
// starts, so nothing started by it keeps sounding.
func (p *Player) finishSilently() {
	if !p.running {
		return
	}
	p.cancel()
	now := p.loop.now()
	for c := p.current; c != nil; c = p.nextMoment() {
		p.send(c, now, false)
	}
	p.running = false
	p.current = nil
}

// stop halts dispatch and releases every sounding note
func (p *Player) stop() {
	p.cancel()
	p.running = false
	p.paused = false
	p.current = nil
	p.seq = nil
	now := p.loop.now()
	for _, msg := range p.voices.release() {
		p.out.Send(msg, now)
		p.sink.record(int(msg[0]&0x0F), msg, now)
	}
}

func (p *Player) resetDeviation() {
	p.maxDeviation = 0
}

package sequencer

import (
	"errors"
	"math"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"

	"go-assist/config"
	"go-assist/debug"
	"go-assist/midi"
	"go-assist/score"
)

// StateMachine is the transport of a performance
type StateMachine interface {
	Play() error
	Pause() error
	Resume() error
	Stop()
	SetState(name string) error
	State() State
}

var _ StateMachine = (*Performance)(nil)

// Option configures a Performance
type Option func(*Performance)

// WithOutput sets the synth the performance plays to
func WithOutput(out midi.Output) Option {
	return func(p *Performance) { p.out = out }
}

// WithClock replaces the system clock
func WithClock(c Clock) Option {
	return func(p *Performance) { p.clock = c }
}

// WithPositionReporter is called with the score position of every reported
// moment, never going backwards within a run.
func WithPositionReporter(f func(ms float64)) Option {
	return func(p *Performance) { p.onPosition = f }
}

// WithEndOfPerformance is called once per run with what was actually sent
// and the performed duration.
func WithEndOfPerformance(f func(rec *score.Sequence, durationMs float64)) Option {
	return func(p *Performance) { p.onEnd = f }
}

// WithConfig applies the performance section of the config file
func WithConfig(cfg config.PerformanceConfig) Option {
	return func(p *Performance) { p.cfg = cfg }
}

// WithPrequeue sets how early a due moment may be sent
func WithPrequeue(ms float64) Option {
	return func(p *Performance) { p.cfg.PrequeueMs = ms }
}

// WithOverride substitutes the performer's pitch and velocity
func WithOverride(o config.OverrideConfig) Option {
	return func(p *Performance) { p.cfg.Override = o }
}

// WithControllerRoutes sets how live controllers reach the score tracks
func WithControllerRoutes(routes []config.ControllerRoute) Option {
	return func(p *Performance) { p.cfg.Controllers = routes }
}

// Performance plays a score while a live performer drives one track
type Performance struct {
	loop   *loop
	clock  Clock
	player *Player
	out    midi.Output
	cfg    config.PerformanceConfig

	onPosition func(ms float64)
	onEnd      func(rec *score.Sequence, durationMs float64)

	// what Load was given
	timeline  *score.Sequence
	performer int
	fromMs    float64
	toMs      float64
	enabled   []bool

	// per run
	state        State
	segments     []*score.Sequence
	cursor       Cursor
	endPending   bool
	started      bool
	startMs      float64
	pausedAt     float64
	lastPosition float64
	rec          *recorder
}

// New creates a stopped performance
func New(opts ...Option) *Performance {
	p := &Performance{
		cfg:          config.DefaultConfig().Performance,
		cursor:       newCursor(),
		lastPosition: score.NoPosition,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = SystemClock()
	}
	p.loop = newLoop(p.clock)
	p.player = newPlayer(p.loop, p.out, p, p.cfg.PrequeueMs)
	return p
}

// Now returns the performance clock, the time base of HandleInput
func (p *Performance) Now() float64 {
	return p.clock.Now()
}

// Load sets the score and span to perform. performer < 0 plays the span
// without a live performer. enabled mutes tracks set to false; nil enables
// all of them.
func (p *Performance) Load(timeline *score.Sequence, performer int, fromMs, toMs float64, enabled []bool) error {
	var err error
	p.loop.do(func() {
		if p.state != Stopped {
			err = &InvalidStateTransitionError{From: p.state, Op: "load"}
			return
		}
		if performer < 0 {
			_, err = score.Span(timeline, fromMs, toMs)
		} else {
			_, err = score.Split(timeline, performer, fromMs, toMs)
		}
		if err != nil {
			return
		}
		p.timeline = timeline
		p.performer = performer
		p.fromMs, p.toMs = fromMs, toMs
		p.enabled = append([]bool(nil), enabled...)
	})
	return err
}

// Play starts a run from the start marker
func (p *Performance) Play() error {
	var err error
	p.loop.do(func() { err = p.play() })
	return err
}

func (p *Performance) play() error {
	if p.state != Stopped {
		return p.violation("play")
	}
	switch {
	case p.out == nil:
		return &ConfigurationError{Missing: "output"}
	case p.onPosition == nil:
		return &ConfigurationError{Missing: "position reporter"}
	case p.onEnd == nil:
		return &ConfigurationError{Missing: "end-of-performance reporter"}
	case p.timeline == nil:
		return &ConfigurationError{Missing: "score"}
	}

	// segments are rebuilt from the timeline every run; overrides rewrite them
	if p.performer < 0 {
		span, err := score.Span(p.timeline, p.fromMs, p.toMs)
		if err != nil {
			return err
		}
		p.segments = []*score.Sequence{span}
	} else {
		segs, err := score.Split(p.timeline, p.performer, p.fromMs, p.toMs)
		if err != nil {
			return err
		}
		p.segments = segs
	}

	p.state = Running
	p.cursor = newCursor()
	p.endPending = false
	p.started = false
	p.lastPosition = score.NoPosition
	p.rec = newRecorder(p.timeline)
	p.player.resetDeviation()

	debug.L().Info("play",
		zap.Int("performer", p.performer),
		zap.Int("segments", len(p.segments)),
		zap.Float64("from", p.fromMs),
		zap.Float64("to", p.toMs))

	if p.performer < 0 {
		p.begin(p.loop.now())
		p.advance()
		return nil
	}
	p.position(p.segments[0].PositionMs)
	return nil
}

// Pause holds dispatch; only legal while running
func (p *Performance) Pause() error {
	var err error
	p.loop.do(func() {
		if p.state != Running {
			err = p.violation("pause")
			return
		}
		p.state = Paused
		p.pausedAt = p.loop.now()
		p.player.pause()
	})
	return err
}

// Resume continues where Pause left off, shifted by the pause length
func (p *Performance) Resume() error {
	var err error
	p.loop.do(func() {
		if p.state != Paused {
			err = p.violation("resume")
			return
		}
		if p.started {
			p.startMs += p.loop.now() - p.pausedAt
		}
		p.state = Running
		p.player.resume()
	})
	return err
}

// Stop ends the run. Stopping a stopped performance does nothing.
func (p *Performance) Stop() {
	p.loop.do(p.stop)
}

func (p *Performance) stop() {
	if p.state == Stopped {
		return
	}
	end := p.loop.now()
	if p.state == Paused {
		end = p.pausedAt
	}
	p.player.stop()
	p.state = Stopped
	p.endPending = false

	duration := 0.0
	if p.started {
		duration = math.Max(0, end-p.startMs)
	}
	rec, onEnd := p.rec.seq, p.onEnd
	debug.L().Info("stop",
		zap.Float64("duration", duration),
		zap.Int("recorded", rec.MomentCount()),
		zap.Float64("maxDeviation", p.player.maxDeviation))
	if onEnd != nil {
		p.loop.notify(func() { onEnd(rec, duration) })
	}
}

// SetState drives the transport by state name
func (p *Performance) SetState(name string) error {
	s, ok := ParseState(name)
	if !ok {
		var err error
		p.loop.do(func() { err = p.violation("set state " + name) })
		return err
	}
	switch s {
	case Stopped:
		p.Stop()
		return nil
	case Paused:
		return p.Pause()
	}
	switch p.State() {
	case Stopped:
		return p.Play()
	case Paused:
		return p.Resume()
	}
	return nil
}

// violation builds the transition error and aborts a live run
func (p *Performance) violation(op string) error {
	err := &InvalidStateTransitionError{From: p.state, Op: op}
	debug.Log("perf", "%v", err)
	p.stop()
	return err
}

// State returns the transport state
func (p *Performance) State() State {
	var s State
	p.loop.do(func() { s = p.state })
	return s
}

// Snapshot is a consistent view of a performance for display
type Snapshot struct {
	State        State
	Cursor       Cursor
	Segments     int
	Kinds        []score.Kind // kind of every segment of the run
	Final        bool         // the current segment is the last one
	Position     float64
	MaxDeviation float64
}

// Snapshot returns the current state, cursor and diagnostics
func (p *Performance) Snapshot() Snapshot {
	var s Snapshot
	p.loop.do(func() {
		s = Snapshot{
			State:        p.state,
			Cursor:       p.cursor,
			Segments:     len(p.segments),
			Kinds:        make([]score.Kind, len(p.segments)),
			Final:        p.endPending,
			Position:     p.lastPosition,
			MaxDeviation: p.player.maxDeviation,
		}
		for i, seg := range p.segments {
			s.Kinds[i] = seg.Kind
		}
	})
	return s
}

// Cursor returns the performer's place in the segment list
func (p *Performance) Cursor() Cursor {
	return p.Snapshot().Cursor
}

// MaxDeviation returns the worst dispatch lateness of the run in ms
func (p *Performance) MaxDeviation() float64 {
	return p.Snapshot().MaxDeviation
}

// PausedMoment returns the moment that will be sent first on resume
func (p *Performance) PausedMoment() *score.Moment {
	var m *score.Moment
	p.loop.do(func() { m = p.player.pausedMoment() })
	return m
}

// begin records the start of the performed time
func (p *Performance) begin(nowMs float64) {
	if p.started {
		return
	}
	p.started = true
	p.startMs = nowMs
}

// advance starts segment Next and moves the cursor onto it
func (p *Performance) advance() {
	next := p.cursor.Next
	p.player.finishSilently()
	p.cursor.Current = next
	p.cursor.Next++
	if next == len(p.segments)-1 {
		p.endPending = true
	}
	// a segment may finish inside start, so the cursor moves first
	p.player.start(p.segments[next], p.enabled)
}

// position reports a score position unless it would go backwards
func (p *Performance) position(ms float64) {
	if ms <= p.lastPosition {
		return
	}
	p.lastPosition = ms
	if f := p.onPosition; f != nil {
		p.loop.notify(func() { f(ms) })
	}
}

func (p *Performance) record(track int, msg gomidi.Message, atMs float64) {
	if p.rec == nil {
		return
	}
	rel := 0.0
	if p.started {
		rel = atMs - p.startMs
	}
	if err := p.rec.add(track, msg, rel); err != nil {
		debug.Log("perf", "record: %v", err)
	}
}

// ended is called when a segment runs out of moments
func (p *Performance) ended() {
	if p.endPending || p.performer < 0 {
		p.stop()
	}
}

// recorder collects the moments actually sent
type recorder struct {
	seq  *score.Sequence
	last float64
}

var errNoTrack = errors.New("no such track")

func newRecorder(layout *score.Sequence) *recorder {
	seq := score.NewSequence(score.Whole, 0)
	for i, t := range layout.Tracks {
		if i < len(seq.Tracks) {
			seq.Tracks[i].Channel = t.Channel
		}
	}
	return &recorder{seq: seq}
}

func (r *recorder) add(track int, msg gomidi.Message, atMs float64) error {
	if track < 0 || track >= len(r.seq.Tracks) {
		return errNoTrack
	}
	// moments stay ordered even if the clock is coarse
	if atMs < r.last {
		atMs = r.last
	}
	if atMs < 0 {
		atMs = 0
	}
	r.last = atMs
	t := r.seq.Tracks[track]
	if err := t.AddMoment(score.NewMoment(atMs, append(gomidi.Message(nil), msg...))); err != nil {
		return err
	}
	if atMs > r.seq.EndMs {
		r.seq.EndMs = atMs
	}
	return nil
}

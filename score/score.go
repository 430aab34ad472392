package score

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// NumChannels is the number of tracks in a timeline, one per MIDI channel.
const NumChannels = 16

// NoPosition marks a moment that carries no score position (live events,
// moments inside a chord or rest).
const NoPosition = -1.0

// ErrMomentOrder is returned when a moment is appended before the last one.
var ErrMomentOrder = errors.New("moment timestamp precedes last moment")

// Kind tags what a Sequence represents
type Kind int

const (
	Whole Kind = iota // whole score or a span of it
	Chord             // performer chord and everything synchronous with it
	Rest              // one or more merged performer rests
)

func (k Kind) String() string {
	switch k {
	case Chord:
		return "chord"
	case Rest:
		return "rest"
	default:
		return "whole"
	}
}

// Moment is a group of MIDI messages sent atomically at the same instant.
type Moment struct {
	Timestamp  float64 // ms, relative to the containing sequence
	Messages   []gomidi.Message
	Position   float64 // absolute score ms, NoPosition if undefined
	ChordStart bool
	RestStart  bool
}

// NewMoment creates an untagged moment without a score position.
func NewMoment(timestamp float64, msgs ...gomidi.Message) *Moment {
	return &Moment{
		Timestamp: timestamp,
		Messages:  msgs,
		Position:  NoPosition,
	}
}

// HasPosition reports whether the moment carries a score position.
func (m *Moment) HasPosition() bool {
	return m.Position >= 0
}

// Empty reports whether the moment is a synthetic placeholder.
func (m *Moment) Empty() bool {
	return len(m.Messages) == 0
}

// Clone deep-copies the moment, including message bytes, at a new timestamp.
func (m *Moment) Clone(timestamp float64) *Moment {
	c := *m
	c.Timestamp = timestamp
	c.Messages = make([]gomidi.Message, len(m.Messages))
	for i, msg := range m.Messages {
		c.Messages[i] = append(gomidi.Message(nil), msg...)
	}
	return &c
}

// Track holds the ordered moments of one MIDI channel.
type Track struct {
	Channel uint8
	Moments []*Moment
}

// NewTrack creates an empty track for the given channel (0-15).
func NewTrack(channel uint8) *Track {
	return &Track{Channel: channel}
}

// Len returns the number of moments.
func (t *Track) Len() int {
	return len(t.Moments)
}

// AddMoment appends m. A moment with the same timestamp as the last one is
// merged into it: messages are concatenated and tags combined, a chord tag
// overriding a rest tag.
func (t *Track) AddMoment(m *Moment) error {
	if n := len(t.Moments); n > 0 {
		last := t.Moments[n-1]
		switch {
		case m.Timestamp < last.Timestamp:
			return fmt.Errorf("%w: %.3f < %.3f", ErrMomentOrder, m.Timestamp, last.Timestamp)
		case m.Timestamp == last.Timestamp:
			last.Messages = append(last.Messages, m.Messages...)
			last.ChordStart = last.ChordStart || m.ChordStart
			last.RestStart = (last.RestStart || m.RestStart) && !last.ChordStart
			if !last.HasPosition() {
				last.Position = m.Position
			}
			return nil
		}
	}
	t.Moments = append(t.Moments, m)
	return nil
}

// Sequence is an ordered set of tracks: a whole score, a span of it, or one
// performer-addressable segment.
type Sequence struct {
	Tracks     []*Track
	PositionMs float64 // absolute start in the score
	EndMs      float64 // duration, relative to PositionMs
	Kind       Kind
	Final      bool // moments at EndMs are still part of the sequence
}

// NewSequence creates a sequence with one empty track per channel.
func NewSequence(kind Kind, positionMs float64) *Sequence {
	s := &Sequence{
		Tracks:     make([]*Track, NumChannels),
		PositionMs: positionMs,
		Kind:       kind,
	}
	for i := range s.Tracks {
		s.Tracks[i] = NewTrack(uint8(i))
	}
	return s
}

// IsChord reports whether the sequence is a performer chord segment.
func (s *Sequence) IsChord() bool { return s.Kind == Chord }

// IsRest reports whether the sequence is a performer rest segment.
func (s *Sequence) IsRest() bool { return s.Kind == Rest }

// EndPosition returns the absolute score position where the sequence ends.
func (s *Sequence) EndPosition() float64 {
	return s.PositionMs + s.EndMs
}

// MomentCount returns the total number of moments across tracks.
func (s *Sequence) MomentCount() int {
	n := 0
	for _, t := range s.Tracks {
		n += t.Len()
	}
	return n
}

package score

import (
	"fmt"
	"sort"
)

// InvalidSpanError reports a start/end marker pair that cannot be performed.
type InvalidSpanError struct {
	FromMs, ToMs float64
	Reason       string
}

func (e *InvalidSpanError) Error() string {
	return fmt.Sprintf("invalid span [%.0f, %.0f): %s", e.FromMs, e.ToMs, e.Reason)
}

func spanError(from, to float64, format string, args ...any) error {
	return &InvalidSpanError{FromMs: from, ToMs: to, Reason: fmt.Sprintf(format, args...)}
}

// Split partitions the timeline into the performer-addressable segments of
// the span [fromMs, toMs). The first segment is always a chord segment
// starting at fromMs and the last one is marked Final.
func Split(tl *Sequence, performer int, fromMs, toMs float64) ([]*Sequence, error) {
	if performer < 0 || performer >= len(tl.Tracks) {
		return nil, spanError(fromMs, toMs, "performer track %d out of range", performer)
	}
	toMs, err := checkSpan(tl, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	segs, err := Segment(tl, performer)
	if err != nil {
		return nil, err
	}
	segs = restrict(MergeRestRuns(segs), fromMs, toMs)
	if len(segs) == 0 {
		return nil, spanError(fromMs, toMs, "span contains no segments")
	}
	if first := segs[0]; !first.IsChord() || first.PositionMs != fromMs {
		return nil, spanError(fromMs, toMs, "performance must begin with a performer chord, found %s at %.0f", first.Kind, first.PositionMs)
	}
	segs[len(segs)-1].Final = true
	return segs, nil
}

// Span returns the part of the timeline between the markers as one Final
// sequence, for playback without a live performer.
func Span(tl *Sequence, fromMs, toMs float64) (*Sequence, error) {
	toMs, err := checkSpan(tl, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	s := withEnd(tl)
	if fromMs > s.PositionMs {
		s = SliceAfter(s, fromMs)
	} else {
		s = s.Clone()
	}
	if toMs < s.EndPosition() {
		s = SliceBefore(s, toMs)
	}
	s.Kind = Whole
	s.Final = true
	return s, nil
}

func checkSpan(tl *Sequence, fromMs, toMs float64) (float64, error) {
	end := withEnd(tl).EndPosition()
	switch {
	case fromMs < tl.PositionMs:
		return 0, spanError(fromMs, toMs, "start marker before the beginning of the score")
	case toMs <= fromMs:
		return 0, spanError(fromMs, toMs, "end marker does not follow start marker")
	case fromMs >= end:
		return 0, spanError(fromMs, toMs, "start marker at or beyond the final barline (%.0f)", end)
	}
	if toMs > end {
		toMs = end
	}
	return toMs, nil
}

// withEnd returns s, or a shallow copy with EndMs derived from its last
// moment when it was never set.
func withEnd(s *Sequence) *Sequence {
	if s.EndMs > 0 {
		return s
	}
	c := *s
	for _, t := range s.Tracks {
		if n := t.Len(); n > 0 && t.Moments[n-1].Timestamp > c.EndMs {
			c.EndMs = t.Moments[n-1].Timestamp
		}
	}
	return &c
}

// emptyCopy creates a sequence with the same track layout and no moments.
func (s *Sequence) emptyCopy(kind Kind, positionMs float64) *Sequence {
	c := &Sequence{
		Tracks:     make([]*Track, len(s.Tracks)),
		PositionMs: positionMs,
		Kind:       kind,
	}
	for i, t := range s.Tracks {
		c.Tracks[i] = NewTrack(t.Channel)
	}
	return c
}

// Clone deep-copies the sequence.
func (s *Sequence) Clone() *Sequence {
	c := s.emptyCopy(s.Kind, s.PositionMs)
	c.EndMs = s.EndMs
	c.Final = s.Final
	for i, t := range s.Tracks {
		for _, m := range t.Moments {
			c.Tracks[i].Moments = append(c.Tracks[i].Moments, m.Clone(m.Timestamp))
		}
	}
	return c
}

// Segment partitions the whole timeline at the performer's chord and rest
// starts. Rest runs are not merged yet.
func Segment(tl *Sequence, performer int) ([]*Sequence, error) {
	tl = withEnd(tl)
	end := tl.EndPosition()

	var segs []*Sequence
	hasChord := false
	for _, m := range tl.Tracks[performer].Moments {
		pos := tl.PositionMs + m.Timestamp
		if pos >= end {
			// the final barline belongs to the last segment
			break
		}
		switch {
		case m.ChordStart:
			segs = append(segs, tl.emptyCopy(Chord, pos))
			hasChord = true
		case m.RestStart:
			segs = append(segs, tl.emptyCopy(Rest, pos))
		}
	}
	if !hasChord {
		return nil, spanError(tl.PositionMs, end, "performer track %d has no chords", performer)
	}
	if segs[0].PositionMs > tl.PositionMs {
		segs = append([]*Sequence{tl.emptyCopy(Rest, tl.PositionMs)}, segs...)
	}
	for i, s := range segs {
		next := end
		if i+1 < len(segs) {
			next = segs[i+1].PositionMs
		}
		s.EndMs = next - s.PositionMs
	}
	segs[len(segs)-1].Final = true

	for ti, t := range tl.Tracks {
		for _, m := range t.Moments {
			pos := tl.PositionMs + m.Timestamp
			i := sort.Search(len(segs), func(i int) bool { return segs[i].PositionMs > pos }) - 1
			if i < 0 {
				i = 0
			}
			s := segs[i]
			s.Tracks[ti].Moments = append(s.Tracks[ti].Moments, m.Clone(pos-s.PositionMs))
		}
	}
	return segs, nil
}

// MergeRests joins two adjacent rest segments into one.
func MergeRests(a, b *Sequence) *Sequence {
	m := a.emptyCopy(Rest, a.PositionMs)
	offset := b.PositionMs - a.PositionMs
	for ti := range m.Tracks {
		for _, mo := range a.Tracks[ti].Moments {
			m.Tracks[ti].Moments = append(m.Tracks[ti].Moments, mo.Clone(mo.Timestamp))
		}
		if ti >= len(b.Tracks) {
			continue
		}
		for _, mo := range b.Tracks[ti].Moments {
			m.Tracks[ti].Moments = append(m.Tracks[ti].Moments, mo.Clone(mo.Timestamp+offset))
		}
	}
	m.EndMs = b.EndPosition() - a.PositionMs
	m.Final = b.Final
	return m
}

// MergeRestRuns merges every run of consecutive rest segments. Only the first
// rest of a run is triggered by the performer; the others play on their own.
func MergeRestRuns(segs []*Sequence) []*Sequence {
	out := make([]*Sequence, 0, len(segs))
	for _, s := range segs {
		if n := len(out); n > 0 && s.IsRest() && out[n-1].IsRest() {
			out[n-1] = MergeRests(out[n-1], s)
			continue
		}
		out = append(out, s)
	}
	return out
}

// restrict drops segments outside [fromMs, toMs) and slices the ones
// straddling a marker.
func restrict(segs []*Sequence, fromMs, toMs float64) []*Sequence {
	var out []*Sequence
	for _, s := range segs {
		if s.EndPosition() <= fromMs {
			continue
		}
		if s.PositionMs >= toMs {
			break
		}
		if s.PositionMs < fromMs {
			s = SliceAfter(s, fromMs)
		}
		if s.EndPosition() > toMs {
			s = SliceBefore(s, toMs)
		}
		out = append(out, s)
	}
	return out
}

// SliceBefore keeps the moments of seg positioned before toMs and closes
// every track with an empty final-barline moment at toMs.
func SliceBefore(seg *Sequence, toMs float64) *Sequence {
	out := seg.emptyCopy(seg.Kind, seg.PositionMs)
	rel := toMs - seg.PositionMs
	for ti, t := range seg.Tracks {
		for _, m := range t.Moments {
			if seg.PositionMs+m.Timestamp >= toMs {
				break
			}
			out.Tracks[ti].Moments = append(out.Tracks[ti].Moments, m.Clone(m.Timestamp))
		}
		barline := NewMoment(rel)
		barline.Position = toMs
		out.Tracks[ti].Moments = append(out.Tracks[ti].Moments, barline)
	}
	out.EndMs = rel
	return out
}

// SliceAfter keeps the moments of seg positioned at or after fromMs, re-based
// so fromMs is relative time 0. A track whose first kept moment lies later
// gets an empty placeholder at 0 carrying the start position. The slice keeps
// seg's kind, so a chord cut by the start marker still opens the performance.
func SliceAfter(seg *Sequence, fromMs float64) *Sequence {
	out := seg.emptyCopy(seg.Kind, fromMs)
	for ti, t := range seg.Tracks {
		for _, m := range t.Moments {
			abs := seg.PositionMs + m.Timestamp
			if abs < fromMs {
				continue
			}
			c := m.Clone(abs - fromMs)
			if len(out.Tracks[ti].Moments) == 0 {
				if c.Timestamp > 0 {
					start := NewMoment(0)
					start.Position = fromMs
					out.Tracks[ti].Moments = append(out.Tracks[ti].Moments, start)
				} else if !c.HasPosition() {
					c.Position = fromMs
				}
			}
			out.Tracks[ti].Moments = append(out.Tracks[ti].Moments, c)
		}
	}
	out.EndMs = seg.EndPosition() - fromMs
	out.Final = seg.Final
	return out
}

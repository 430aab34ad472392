package score

import (
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const defaultBPM = 120.0

// ReadSMF loads a Standard MIDI File as a timeline.
func ReadSMF(path string) (*Sequence, error) {
	mid, err := smf.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("read smf", fmt.Sprintf("Could not read MIDI file %s", path)),
			ftag.With(ftag.NotFound))
	}
	tl, err := FromSMF(mid)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With(path))
	}
	return tl, nil
}

// FromSMF converts a parsed MIDI file into a timeline with one track per
// channel. Every track is tagged on its own: a moment starting a note is a
// chord start, a moment after which no note of the channel sounds is a rest
// start. Both carry their score position. A track that begins with silence
// gets an empty rest placeholder at 0.
func FromSMF(mid *smf.SMF) (*Sequence, error) {
	ticks, ok := mid.TimeFormat.(smf.MetricTicks)
	if !ok || ticks == 0 {
		return nil, fault.New("unsupported smf time format",
			fmsg.WithDesc("unsupported smf time format", "Only metric (ticks per quarter note) MIDI files are supported"),
			ftag.With(ftag.InvalidArgument))
	}

	tm := tempoMap{resolution: float64(ticks)}
	var endTick int64
	forEachEvent(mid, func(tick int64, track int, msg smf.Message) {
		var bpm float64
		if msg != nil && msg.GetMetaTempo(&bpm) {
			tm.add(tick, bpm)
		}
		if tick > endTick {
			endTick = tick
		}
	})

	tl := NewSequence(Whole, 0)
	var sounding [NumChannels]int
	var err error
	forEachEvent(mid, func(tick int64, track int, msg smf.Message) {
		if err != nil || !isChannelMessage(msg) {
			return
		}
		ms := tm.ms(tick)
		m := NewMoment(ms, append(gomidi.Message(nil), msg...))
		ch := msg[0] & 0x0F
		if _, _, _, start := NoteStart(m.Messages[0]); start {
			sounding[ch]++
			m.ChordStart = true
			m.Position = ms
		} else if _, _, end := NoteEnd(m.Messages[0]); end && sounding[ch] > 0 {
			sounding[ch]--
			if sounding[ch] == 0 {
				m.RestStart = true
				m.Position = ms
			}
		}
		err = tl.Tracks[ch].AddMoment(m)
	})
	if err != nil {
		return nil, err
	}
	tl.EndMs = tm.ms(endTick)

	for _, t := range tl.Tracks {
		if t.Len() == 0 || t.Moments[0].Timestamp == 0 {
			continue
		}
		rest := NewMoment(0)
		rest.RestStart = true
		rest.Position = 0
		t.Moments = append([]*Moment{rest}, t.Moments...)
	}
	return tl, nil
}

// forEachEvent walks all tracks merged in time order; ties keep track order.
func forEachEvent(mid *smf.SMF, yield func(tick int64, track int, msg smf.Message)) {
	// trackPos is the index of the NEXT event of each track,
	// trackTime the time of the LAST one.
	trackPos := make([]int, len(mid.Tracks))
	trackTime := make([]int64, len(mid.Tracks))
	for {
		earliest := -1
		var earliestTime int64
		for i, t := range mid.Tracks {
			p := trackPos[i]
			if p >= len(t) {
				continue
			}
			at := trackTime[i] + int64(t[p].Delta)
			if earliest < 0 || at < earliestTime {
				earliest = i
				earliestTime = at
			}
		}
		if earliest < 0 {
			return
		}
		msg := mid.Tracks[earliest][trackPos[earliest]].Message
		if !msg.Is(smf.MetaEndOfTrackMsg) {
			yield(earliestTime, earliest, msg)
		} else if earliestTime > 0 {
			yield(earliestTime, earliest, nil)
		}
		trackPos[earliest]++
		trackTime[earliest] = earliestTime
	}
}

type tempoChange struct {
	tick int64
	bpm  float64
}

// tempoMap converts absolute ticks to milliseconds.
type tempoMap struct {
	resolution float64 // ticks per quarter note
	changes    []tempoChange
}

func (tm *tempoMap) add(tick int64, bpm float64) {
	if bpm <= 0 {
		return
	}
	if n := len(tm.changes); n > 0 && tm.changes[n-1].tick == tick {
		tm.changes[n-1].bpm = bpm
		return
	}
	tm.changes = append(tm.changes, tempoChange{tick: tick, bpm: bpm})
}

func (tm *tempoMap) ms(tick int64) float64 {
	var (
		ms   float64
		prev int64
		bpm  = defaultBPM
	)
	for _, c := range tm.changes {
		if c.tick >= tick {
			break
		}
		ms += float64(c.tick-prev) * 60000 / (bpm * tm.resolution)
		prev, bpm = c.tick, c.bpm
	}
	return ms + float64(tick-prev)*60000/(bpm*tm.resolution)
}

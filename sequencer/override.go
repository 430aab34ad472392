package sequencer

import (
	"go-assist/config"
	"go-assist/score"
)

// applyOverride retunes segment index by the difference between what the
// performer played and the lowest scored note of the performer's first
// moment. Note-offs of notes still sounding at the end of the segment are
// patched in the segments after it.
func applyOverride(segs []*score.Sequence, index, performer int, pitch, velocity uint8, cfg config.OverrideConfig) {
	seg := segs[index]
	if performer < 0 || performer >= len(seg.Tracks) || seg.Tracks[performer].Len() == 0 {
		return
	}

	scoredPitch, scoredVelocity := -1, 0
	for _, msg := range seg.Tracks[performer].Moments[0].Messages {
		if _, key, vel, ok := score.NoteStart(msg); ok && (scoredPitch < 0 || int(key) < scoredPitch) {
			scoredPitch, scoredVelocity = int(key), int(vel)
		}
	}
	if scoredPitch < 0 {
		return
	}

	var pd, vd int
	if cfg.Pitch {
		pd = int(pitch) - scoredPitch
	}
	if cfg.Velocity {
		vd = int(velocity) - scoredVelocity
	}
	if pd == 0 && vd == 0 {
		return
	}

	for ti, t := range seg.Tracks {
		if !cfg.Tracks.Includes(ti, performer) {
			continue
		}
		var pending [128]int
		for _, m := range t.Moments {
			for _, msg := range m.Messages {
				if _, key, vel, ok := score.NoteStart(msg); ok {
					score.SetKey(msg, score.Clamp(int(key)+pd))
					v := score.Clamp(int(vel) + vd)
					if v == 0 {
						// velocity 0 would turn it into a note end
						v = 1
					}
					score.SetVelocity(msg, v)
					pending[key]++
				} else if _, key, ok := score.NoteEnd(msg); ok && pending[key] > 0 {
					score.SetKey(msg, score.Clamp(int(key)+pd))
					pending[key]--
				}
			}
		}
		if pd != 0 {
			patchHanging(segs[index+1:], ti, &pending, pd)
		}
	}
}

// patchHanging shifts, per pending key, the first note-offs of that key on
// track ti. Each message is looked at once, so shifted ones are not matched
// again.
func patchHanging(later []*score.Sequence, ti int, pending *[128]int, pd int) {
	left := 0
	for _, n := range pending {
		left += n
	}
	for _, seg := range later {
		if ti >= len(seg.Tracks) {
			continue
		}
		for _, m := range seg.Tracks[ti].Moments {
			for _, msg := range m.Messages {
				if _, key, ok := score.NoteEnd(msg); ok && pending[key] > 0 {
					score.SetKey(msg, score.Clamp(int(key)+pd))
					pending[key]--
					if left--; left == 0 {
						return
					}
				}
			}
		}
	}
}

package sequencer

import (
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
)

type voice struct {
	ch, key uint8
}

// voices counts the notes sent and not yet released
type voices struct {
	active map[voice]int
}

func newVoices() *voices {
	return &voices{active: map[voice]int{}}
}

func (v *voices) handle(msg gomidi.Message) {
	var ch, key, vel uint8
	if msg.GetNoteStart(&ch, &key, &vel) {
		v.active[voice{ch, key}]++
		return
	}
	if msg.GetNoteEnd(&ch, &key) {
		k := voice{ch, key}
		if v.active[k] > 0 {
			v.active[k]--
			if v.active[k] == 0 {
				delete(v.active, k)
			}
		}
	}
}

func (v *voices) sounding() bool {
	return len(v.active) > 0
}

// release returns one note-off per sounding voice, ordered by channel and
// key, and forgets them.
func (v *voices) release() []gomidi.Message {
	keys := make([]voice, 0, len(v.active))
	for k := range v.active {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ch != keys[j].ch {
			return keys[i].ch < keys[j].ch
		}
		return keys[i].key < keys[j].key
	})
	var out []gomidi.Message
	for _, k := range keys {
		for n := v.active[k]; n > 0; n-- {
			out = append(out, gomidi.NoteOff(k.ch, k.key))
		}
	}
	v.active = map[voice]int{}
	return out
}

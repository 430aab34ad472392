package score

import gomidi "gitlab.com/gomidi/midi/v2"

// NoteStart reports whether msg starts a note (note-on, velocity > 0).
func NoteStart(msg gomidi.Message) (ch, key, velocity uint8, ok bool) {
	ok = msg.GetNoteStart(&ch, &key, &velocity)
	return
}

// NoteEnd reports whether msg ends a note (note-off, or note-on velocity 0).
func NoteEnd(msg gomidi.Message) (ch, key uint8, ok bool) {
	ok = msg.GetNoteEnd(&ch, &key)
	return
}

// SetKey rewrites the key of a note message in place.
func SetKey(msg gomidi.Message, key uint8) {
	if len(msg) >= 2 {
		msg[1] = key & 0x7F
	}
}

// SetVelocity rewrites the velocity of a note message in place.
func SetVelocity(msg gomidi.Message, velocity uint8) {
	if len(msg) >= 3 {
		msg[2] = velocity & 0x7F
	}
}

// Clamp saturates v to the 7-bit MIDI data range.
func Clamp(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 127:
		return 127
	}
	return uint8(v)
}

// isChannelMessage reports whether msg is a channel voice message.
func isChannelMessage(msg []byte) bool {
	return len(msg) > 0 && msg[0] >= 0x80 && msg[0] < 0xF0
}

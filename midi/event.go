package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Status bytes the input filter cares about
const (
	SysExStart   uint8 = 0xF0
	SysExEnd     uint8 = 0xF7
	TuneRequest  uint8 = 0xF6
	RealtimeBase uint8 = 0xF8
)

// MalformedInputError reports a byte sequence that is not valid MIDI
type MalformedInputError struct {
	Data   []byte
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed midi input [% X]: %s", e.Data, e.Reason)
}

func malformed(data []byte, reason string) error {
	return &MalformedInputError{Data: append([]byte(nil), data...), Reason: reason}
}

// InputEvent is a live message with the time it was received
type InputEvent struct {
	Message    gomidi.Message
	ReceivedMs float64
}

// ParseInput validates one raw input packet. SysEx, realtime and tune
// request packets are dropped with ok == false and no error.
func ParseInput(data []byte, receivedMs float64) (ev InputEvent, ok bool, err error) {
	if len(data) == 0 {
		return ev, false, malformed(data, "empty packet")
	}
	status := data[0]
	switch {
	case status < 0x80:
		return ev, false, malformed(data, "missing status byte")
	case status == SysExStart:
		if len(data) < 2 || data[len(data)-1] != SysExEnd {
			return ev, false, malformed(data, "unterminated sysex")
		}
		for _, b := range data[1 : len(data)-1] {
			if b >= 0x80 {
				return ev, false, malformed(data, "status byte inside sysex")
			}
		}
		return ev, false, nil
	case status >= RealtimeBase, status == TuneRequest:
		return ev, false, nil
	}

	want := messageLength(status)
	if want == 0 {
		return ev, false, malformed(data, fmt.Sprintf("undefined status %02X", status))
	}
	if len(data) != want {
		return ev, false, malformed(data, fmt.Sprintf("want %d bytes, got %d", want, len(data)))
	}
	for _, b := range data[1:] {
		if b >= 0x80 {
			return ev, false, malformed(data, "stray status byte in data")
		}
	}
	return InputEvent{
		Message:    append(gomidi.Message(nil), data...),
		ReceivedMs: receivedMs,
	}, true, nil
}

// messageLength returns the full length of a message with the given status,
// or 0 if the status is undefined.
func messageLength(status uint8) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	case 0xF0:
		switch status {
		case 0xF1, 0xF3:
			return 2
		case 0xF2:
			return 3
		}
		return 0
	}
	return 3
}

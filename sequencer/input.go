package sequencer

import (
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-assist/config"
	"go-assist/debug"
	"go-assist/midi"
	"go-assist/score"
)

// HandleInput feeds one raw live message to the performance. Malformed
// input returns a *midi.MalformedInputError; SysEx and realtime bytes are
// dropped. Input only acts while running.
func (p *Performance) HandleInput(data []byte, receivedMs float64) error {
	ev, ok, err := midi.ParseInput(data, receivedMs)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	p.loop.do(func() {
		if p.state != Running {
			return
		}
		p.handle(ev)
	})
	return nil
}

func (p *Performance) handle(ev midi.InputEvent) {
	var ch, key, vel, cc, val uint8
	var rel int16
	var abs uint16
	msg := ev.Message
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		p.noteOn(key, vel, ev.ReceivedMs)
	case msg.GetNoteEnd(&ch, &key):
		p.noteOff(key)
	case msg.GetAfterTouch(&ch, &val):
		p.routeController(config.ChannelPressure, controllerValue{value: val, key: -1})
	case msg.GetPolyAfterTouch(&ch, &key, &val):
		p.routeController(config.PolyPressure, controllerValue{value: val, key: int(key)})
	case msg.GetPitchBend(&ch, &rel, &abs):
		p.routeController(config.PitchWheel, controllerValue{value: uint8(abs >> 7), bend: rel, key: -1})
	case msg.GetControlChange(&ch, &cc, &val) && cc == 1:
		p.routeController(config.ModWheel, controllerValue{value: val, key: -1})
	default:
		debug.LogEvery(50, "input", "ignored %s", msg)
	}
}

func (p *Performance) noteOn(key, velocity uint8, receivedMs float64) {
	if p.performer < 0 {
		return
	}
	p.begin(receivedMs)
	if p.endPending {
		// a note-on while the final segment sounds ends the performance
		p.stop()
		return
	}
	next := p.cursor.Next
	if next >= len(p.segments) {
		return
	}
	if next != 0 && !p.segments[next].IsChord() {
		// rests start on note-off
		return
	}
	p.cursor.HeldKey = int(key)
	if p.cfg.Override.Enabled() {
		applyOverride(p.segments, next, p.performer, key, velocity, p.cfg.Override)
	}
	p.advance()
}

func (p *Performance) noteOff(key uint8) {
	if p.performer < 0 || p.cursor.HeldKey != int(key) {
		return
	}
	p.cursor.HeldKey = NoKey
	p.player.finishSilently()
	if p.endPending {
		p.stop()
		return
	}
	next := p.cursor.Next
	if next >= len(p.segments) {
		return
	}
	if p.segments[next].IsRest() {
		p.advance()
		return
	}
	p.position(p.segments[next].PositionMs)
}

type controllerValue struct {
	value uint8 // 7-bit value
	bend  int16 // pitch wheel, -8192..8191
	key   int   // polyphonic pressure key, -1 if none
}

// routeController sends a live controller to the tracks its route selects
func (p *Performance) routeController(source config.ControllerKind, v controllerValue) {
	route := p.cfg.Route(source)
	if route == nil {
		return
	}
	target := route.TargetKind()
	if source != config.PitchWheel && target == config.PitchWheel {
		v.bend = int16(int(v.value)*128 - 8192)
	}
	if target == config.PolyPressure && v.key < 0 {
		if p.cursor.HeldKey == NoKey {
			return
		}
		v.key = p.cursor.HeldKey
	}

	now := p.loop.now()
	for track := 0; track < score.NumChannels; track++ {
		if !route.Tracks.Includes(track, p.performer) || !p.trackEnabled(track) {
			continue
		}
		msg := controllerMessage(target, uint8(track), v)
		if msg == nil {
			continue
		}
		p.out.Send(msg, now)
		p.record(track, msg, now)
	}
}

func (p *Performance) trackEnabled(track int) bool {
	return track >= len(p.enabled) || p.enabled[track]
}

func controllerMessage(kind config.ControllerKind, ch uint8, v controllerValue) gomidi.Message {
	switch kind {
	case config.ChannelPressure:
		return gomidi.AfterTouch(ch, v.value)
	case config.PolyPressure:
		return gomidi.PolyAfterTouch(ch, uint8(v.key), v.value)
	case config.PitchWheel:
		return gomidi.Pitchbend(ch, v.bend)
	case config.ModWheel:
		return gomidi.ControlChange(ch, 1, v.value)
	case config.Volume:
		return gomidi.ControlChange(ch, 7, v.value)
	case config.Expression:
		return gomidi.ControlChange(ch, 11, v.value)
	}
	return nil
}

package midi

import (
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-assist/debug"
)

// KeyboardController handles a standard MIDI keyboard
type KeyboardController struct {
	id       string
	inPort   drivers.In
	stopFunc func()
	now      func() float64

	mu      sync.Mutex
	closed  bool
	packets chan Packet
}

// NewKeyboardController opens inPort and forwards everything it receives,
// SysEx included. now stamps each packet; it should be the clock of the
// performance consuming the packets.
func NewKeyboardController(id string, inPort drivers.In, now func() float64) (*KeyboardController, error) {
	kb := &KeyboardController{
		id:      id,
		inPort:  inPort,
		now:     now,
		packets: make(chan Packet, 64),
	}

	// Open input
	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			kb.deliver(msg)
		}, gomidi.UseSysEx())
		if err != nil {
			return nil, fault.Wrap(err, fmsg.WithDesc("open input", "Could not open MIDI input "+id))
		}
		kb.stopFunc = stop
	}

	return kb, nil
}

func (kb *KeyboardController) deliver(msg []byte) {
	p := Packet{Data: append([]byte(nil), msg...), ReceivedMs: kb.now()}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.closed {
		return
	}
	select {
	case kb.packets <- p:
	default:
		debug.LogEvery(10, "input", "%s: buffer full, dropping % X", kb.id, p.Data)
	}
}

func (kb *KeyboardController) ID() string {
	return kb.id
}

func (kb *KeyboardController) Type() ControllerType {
	return ControllerKeyboard
}

func (kb *KeyboardController) Packets() <-chan Packet {
	return kb.packets
}

func (kb *KeyboardController) Close() error {
	if kb.stopFunc != nil {
		kb.stopFunc()
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if !kb.closed {
		kb.closed = true
		close(kb.packets)
	}
	return nil
}

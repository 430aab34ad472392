package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerKeyboard
)

func (t ControllerType) String() string {
	if t == ControllerKeyboard {
		return "keyboard"
	}
	return "unknown"
}

// Packet is one raw message as delivered by the driver, stamped on arrival
type Packet struct {
	Data       []byte
	ReceivedMs float64
}

// Controller is the interface for MIDI input devices
type Controller interface {
	ID() string
	Type() ControllerType

	// Raw input, unfiltered. Consumers run it through ParseInput.
	Packets() <-chan Packet

	// Lifecycle
	Close() error
}

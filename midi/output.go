package midi

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-assist/debug"
)

// Output is a device that accepts timestamped MIDI messages. Send does not
// block and reports nothing back.
type Output interface {
	Send(msg gomidi.Message, timestampMs float64)
}

// PortOutput sends to a hardware or virtual MIDI port
type PortOutput struct {
	name string
	send func(msg gomidi.Message) error
	now  func() float64

	mu    sync.Mutex
	queue []scheduled // by due time, FIFO within one due time
	timer *time.Timer
}

type scheduled struct {
	at  float64
	msg gomidi.Message
}

// NewPortOutput wraps an opened port. Messages stamped later than now()
// are held back until due.
func NewPortOutput(port drivers.Out, now func() float64) (*PortOutput, error) {
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("open output", "Could not open MIDI output "+port.String()))
	}
	return &PortOutput{
		name: port.String(),
		send: func(msg gomidi.Message) error { return send(msg) },
		now:  now,
	}, nil
}

// OpenOutput opens the first output port whose name contains match
func OpenOutput(match string, now func() float64) (*PortOutput, error) {
	ports, err := Ports()
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("list ports", "MIDI driver is not responding"))
	}
	for _, p := range ports.Outs {
		if MatchPort(p.String(), match) {
			return NewPortOutput(p, now)
		}
	}
	return nil, fault.New(fmt.Sprintf("no output port matching %q", match),
		fmsg.WithDesc("no output port", fmt.Sprintf("No MIDI output matching %q found", match)),
		ftag.With(ftag.NotFound))
}

func (o *PortOutput) Name() string {
	return o.name
}

// Send writes msg now, or queues it when it is due 1ms or more ahead.
// Messages go out in due order, and in call order for equal due times.
func (o *PortOutput) Send(msg gomidi.Message, timestampMs float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	if timestampMs-now < 1 {
		o.drain(now)
		o.write(msg)
		return
	}
	i := sort.Search(len(o.queue), func(i int) bool { return o.queue[i].at > timestampMs })
	o.queue = append(o.queue, scheduled{})
	copy(o.queue[i+1:], o.queue[i:])
	o.queue[i] = scheduled{at: timestampMs, msg: msg}
	if i == 0 {
		o.arm(now)
	}
}

// flush runs on the timer and writes everything due
func (o *PortOutput) flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	o.drain(now)
	if len(o.queue) > 0 {
		o.arm(now)
	}
}

// drain writes the queued messages that are due. Must hold mu.
func (o *PortOutput) drain(now float64) {
	n := 0
	for n < len(o.queue) && o.queue[n].at-now < 1 {
		o.write(o.queue[n].msg)
		n++
	}
	if n > 0 {
		o.queue = append(o.queue[:0], o.queue[n:]...)
	}
}

// arm points the timer at the head of the queue. Must hold mu.
func (o *PortOutput) arm(now float64) {
	if o.timer != nil {
		o.timer.Stop()
	}
	delay := o.queue[0].at - now
	o.timer = time.AfterFunc(time.Duration(delay*float64(time.Millisecond)), o.flush)
}

// write sends one message. Must hold mu.
func (o *PortOutput) write(msg gomidi.Message) {
	if err := o.send(msg); err != nil {
		debug.Log("output", "%s: send % X: %v", o.name, []byte(msg), err)
	}
}

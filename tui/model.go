package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Southclaws/fault/fmsg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-assist/debug"
	"go-assist/midi"
	"go-assist/score"
	"go-assist/sequencer"
	"go-assist/theme"
)

// stripWidth is how many segments the strip shows around the cursor
const stripWidth = 32

type PositionMsg float64

type EndMsg struct {
	DurationMs float64
	Moments    int
}

type ErrMsg struct{ Err error }

type DeviceEventMsg midi.DeviceEvent

// Updates carries performance callbacks and device events into the program.
// Senders never block: a position update is dropped when the buffer is full,
// any other message replaces the oldest queued one.
type Updates struct {
	ch chan tea.Msg
}

func NewUpdates() *Updates {
	return &Updates{ch: make(chan tea.Msg, 64)}
}

// Position is a position reporter for sequencer.WithPositionReporter
func (u *Updates) Position(ms float64) {
	select {
	case u.ch <- PositionMsg(ms):
	default:
	}
}

// End is an end-of-performance reporter for sequencer.WithEndOfPerformance
func (u *Updates) End(rec *score.Sequence, durationMs float64) {
	u.push(EndMsg{DurationMs: durationMs, Moments: rec.MomentCount()})
}

func (u *Updates) Err(err error) {
	u.push(ErrMsg{Err: err})
}

func (u *Updates) Device(ev midi.DeviceEvent) {
	u.push(DeviceEventMsg(ev))
}

// push makes room for msg when nobody is draining the buffer
func (u *Updates) push(msg tea.Msg) {
	for {
		select {
		case u.ch <- msg:
			return
		default:
		}
		select {
		case old := <-u.ch:
			debug.Log("tui", "buffer full, dropped %T", old)
		default:
		}
	}
}

func ListenForUpdates(u *Updates) tea.Cmd {
	return func() tea.Msg {
		return <-u.ch
	}
}

type Model struct {
	Perf    *sequencer.Performance
	Updates *Updates
	Theme   *theme.Theme
	Title   string

	position float64
	last     *EndMsg
	keyboard string
	err      error
	quitting bool
}

func NewModel(perf *sequencer.Performance, updates *Updates, th *theme.Theme, title string) Model {
	return Model{
		Perf:     perf,
		Updates:  updates,
		Theme:    th,
		Title:    title,
		position: score.NoPosition,
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Perf.Stop()
			return m, tea.Quit

		case "p":
			m.err = nil
			if err := m.Perf.Play(); err != nil {
				m.err = err
			} else {
				m.last = nil
				m.position = score.NoPosition
			}

		case " ":
			var err error
			switch m.Perf.State() {
			case sequencer.Running:
				err = m.Perf.Pause()
			case sequencer.Paused:
				err = m.Perf.Resume()
			}
			m.err = err

		case "s":
			m.Perf.Stop()
		}

	case PositionMsg:
		m.position = float64(msg)
		return m, ListenForUpdates(m.Updates)

	case EndMsg:
		m.last = &msg
		return m, ListenForUpdates(m.Updates)

	case ErrMsg:
		m.err = msg.Err
		return m, ListenForUpdates(m.Updates)

	case DeviceEventMsg:
		switch msg.Type {
		case midi.DeviceConnected:
			m.keyboard = msg.ID
		case midi.DeviceDisconnected:
			if m.keyboard == msg.ID {
				m.keyboard = ""
			}
		}
		return m, ListenForUpdates(m.Updates)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	snap := m.Perf.Snapshot()

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	stateStyle := lipgloss.NewStyle().Bold(true).Foreground(m.Theme.State(snap.State.String()))
	errStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	keyboard := "no keyboard"
	if m.keyboard != "" {
		keyboard = m.keyboard
	}
	header := headerStyle.Render("go-assist  "+m.Title) + "  " +
		stateStyle.Render(strings.ToUpper(snap.State.String())) + "  " +
		dimStyle.Render(keyboard)

	held := string(m.Theme.Symbols.Up)
	if snap.Cursor.HeldKey != sequencer.NoKey {
		held = string(m.Theme.Symbols.Held) + " " + noteName(uint8(snap.Cursor.HeldKey))
	}
	status := fmt.Sprintf("%s  segment %d/%d  %s  late %.1fms",
		formatMs(m.position), snap.Cursor.Current+1, snap.Segments, held, snap.MaxDeviation)

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(m.strip(snap))
	out.WriteString("\n")
	out.WriteString(status)
	out.WriteString("\n")

	if m.last != nil {
		out.WriteString(dimStyle.Render(fmt.Sprintf("last run %s, %d moments sent", formatMs(m.last.DurationMs), m.last.Moments)))
		out.WriteString("\n")
	}
	if m.err != nil {
		out.WriteString(errStyle.Render(issue(m.err)))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("p:play  space:pause/resume  s:stop  q:quit"))
	return out.String()
}

// strip draws the segments around the cursor, one symbol each
func (m Model) strip(snap sequencer.Snapshot) string {
	if len(snap.Kinds) == 0 {
		return ""
	}
	sym := m.Theme.Symbols
	currentStyle := lipgloss.NewStyle().Foreground(m.Theme.Cursor())
	nextStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	from := snap.Cursor.Current - stripWidth/2
	if from < 0 {
		from = 0
	}
	to := min(from+stripWidth, len(snap.Kinds))

	var cells []string
	for i := from; i < to; i++ {
		r := sym.Rest
		if snap.Kinds[i] == score.Chord {
			r = sym.Chord
		}
		if i == len(snap.Kinds)-1 && snap.Kinds[i] != score.Whole {
			r = sym.Final
		}
		switch {
		case i == snap.Cursor.Current && snap.State != sequencer.Stopped:
			cells = append(cells, currentStyle.Render(string(sym.Current)))
		case i == snap.Cursor.Next && snap.State != sequencer.Stopped:
			cells = append(cells, nextStyle.Render(string(sym.Next)))
		default:
			cells = append(cells, dimStyle.Render(string(r)))
		}
	}
	return strings.Join(cells, "")
}

// issue prefers the user-facing message of a boundary error
func issue(err error) string {
	if msg := fmsg.GetIssue(err); msg != "" {
		return msg
	}
	var stateErr *sequencer.InvalidStateTransitionError
	if errors.As(err, &stateErr) {
		return "Cannot " + stateErr.Op + " while " + stateErr.From.String()
	}
	return err.Error()
}

// formatMs renders a score position as m:ss.mmm
func formatMs(ms float64) string {
	if ms < 0 {
		return "-:--.---"
	}
	total := int64(ms)
	return fmt.Sprintf("%d:%02d.%03d", total/60000, total/1000%60, total%1000)
}

// noteName converts a MIDI note to a readable name (e.g. "C4", "F#3")
func noteName(note uint8) string {
	names := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := int(note)/12 - 1
	return fmt.Sprintf("%s%d", names[note%12], octave)
}

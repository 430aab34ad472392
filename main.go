package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"go-assist/config"
	"go-assist/debug"
	"go-assist/midi"
	"go-assist/score"
	"go-assist/sequencer"
	"go-assist/theme"
	"go-assist/tui"
)

var (
	Version = "dev"

	// Command-line configuration
	opts struct {
		config    string
		debug     bool
		performer int
		from      float64
		to        float64
		mute      []int
		in        string
		out       string
		noTUI     bool
		palette   string
	}

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "go-assist",
	Short: "Play a MIDI score along with a live performer",
	Long: `go-assist plays a Standard MIDI File to a synth while you perform one of
its tracks on a keyboard. Each chord you play releases the accompaniment up
to your next chord; releasing the key lets the following rest play out.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { debug.Disable() },
}

var playCmd = &cobra.Command{
	Use:   "play <file.mid>",
	Short: "Perform a score",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&opts.config, "config", "c", "",
		"Config file, JSON or YAML (default ~/.config/go-assist/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false,
		"Write debug logs to ~/.config/go-assist/debug.log")

	playCmd.Flags().IntVarP(&opts.performer, "performer", "p", 0,
		"Channel (0-15) the performer plays, -1 to play without one")
	playCmd.Flags().Float64Var(&opts.from, "from", 0,
		"Start marker in ms")
	playCmd.Flags().Float64Var(&opts.to, "to", 0,
		"End marker in ms (default end of score)")
	playCmd.Flags().IntSliceVar(&opts.mute, "mute", nil,
		"Channels not to play")
	playCmd.Flags().StringVar(&opts.in, "in", "",
		"Keyboard input port, substring match")
	playCmd.Flags().StringVar(&opts.out, "out", "",
		"Synth output port, substring match")
	playCmd.Flags().BoolVar(&opts.noTUI, "no-tui", false,
		"Play immediately and print positions instead of showing the screen")
	playCmd.Flags().StringVar(&opts.palette, "palette", "",
		"GIMP palette (.gpl) for the screen")

	rootCmd.AddCommand(playCmd, portsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", issue(err))
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if opts.config != "" {
		cfg, err = config.LoadFile(opts.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if opts.debug || cfg.Debug {
		if err := debug.Enable(); err != nil {
			return fault.Wrap(err, fmsg.WithDesc("enable debug log", "Could not open the debug log"))
		}
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("performer") {
		cfg.Performance.Performer = opts.performer
	}
	if flags.Changed("in") {
		cfg.Input.PortName = opts.in
	}
	if flags.Changed("out") {
		cfg.SynthOutput.PortName = opts.out
	}
	if err := cfg.Validate(); err != nil {
		return fault.Wrap(err, ftag.With(ftag.InvalidArgument))
	}

	enabled, err := enabledTracks(opts.mute)
	if err != nil {
		return err
	}
	to := opts.to
	if !flags.Changed("to") {
		to = math.Inf(1)
	}

	timeline, err := score.ReadSMF(args[0])
	if err != nil {
		return err
	}

	th := theme.New(nil)
	if opts.palette != "" {
		p, err := theme.LoadGPL(opts.palette)
		if err != nil {
			return err
		}
		th = theme.New(p)
	}

	clock := sequencer.SystemClock()
	out, err := midi.OpenOutput(cfg.SynthOutput.PortName, clock.Now)
	if err != nil {
		return err
	}
	debug.Log("main", "output %s", out.Name())

	updates := tui.NewUpdates()
	done := make(chan struct{})
	onPosition := updates.Position
	onEnd := updates.End
	if opts.noTUI {
		onPosition = func(ms float64) { fmt.Printf("%10.0f ms\n", ms) }
		onEnd = func(rec *score.Sequence, durationMs float64) {
			fmt.Printf("done after %.0f ms, %d moments sent\n", durationMs, rec.MomentCount())
			close(done)
		}
	}

	perf := sequencer.New(
		sequencer.WithClock(clock),
		sequencer.WithOutput(out),
		sequencer.WithConfig(cfg.Performance),
		sequencer.WithPositionReporter(onPosition),
		sequencer.WithEndOfPerformance(onEnd),
	)
	if err := perf.Load(timeline, cfg.Performance.Performer, opts.from, to, enabled); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("load", "The start and end markers cannot be performed: "+err.Error()))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deviceMgr := midi.NewDeviceManager(cfg.Input.PortName, clock.Now)
	go deviceMgr.Run(ctx)
	go pumpDevices(deviceMgr, perf, func(ev midi.DeviceEvent) {
		if opts.noTUI {
			fmt.Println(describe(ev))
			return
		}
		updates.Device(ev)
	})

	if opts.noTUI {
		if err := perf.Play(); err != nil {
			return err
		}
		select {
		case <-done:
		case <-ctx.Done():
			perf.Stop()
			<-done
		}
		return nil
	}

	m := tui.NewModel(perf, updates, th, filepath.Base(args[0]))
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	perf.Stop()
	return err
}

// pumpDevices feeds every connected keyboard into the performance
func pumpDevices(dm *midi.DeviceManager, perf *sequencer.Performance, notify func(midi.DeviceEvent)) {
	for ev := range dm.Events() {
		notify(ev)
		if ev.Type == midi.DeviceConnected {
			go pumpInput(ev.Controller, perf)
		}
	}
}

func pumpInput(c midi.Controller, perf *sequencer.Performance) {
	for p := range c.Packets() {
		err := perf.HandleInput(p.Data, p.ReceivedMs)
		if err == nil {
			continue
		}
		var bad *midi.MalformedInputError
		if errors.As(err, &bad) {
			debug.LogEvery(20, "input", "%s: %v", c.ID(), err)
			continue
		}
		debug.Log("input", "%s: %v", c.ID(), err)
	}
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := midi.Ports()
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("list ports", "MIDI driver is not responding (macOS: sudo killall coreaudiod midiserver)"))
	}
	mark := func(name, pattern string) string {
		if pattern != "" && midi.MatchPort(name, pattern) {
			return "*"
		}
		return " "
	}
	fmt.Println("Inputs:")
	for i, p := range ports.Ins {
		fmt.Printf(" %s %d: %s\n", mark(p.String(), cfg.Input.PortName), i, p.String())
	}
	fmt.Println("Outputs:")
	for i, p := range ports.Outs {
		fmt.Printf(" %s %d: %s\n", mark(p.String(), cfg.SynthOutput.PortName), i, p.String())
	}
	return nil
}

// enabledTracks turns muted channel numbers into the enabled array of Load
func enabledTracks(mute []int) ([]bool, error) {
	enabled := make([]bool, score.NumChannels)
	for i := range enabled {
		enabled[i] = true
	}
	for _, ch := range mute {
		if ch < 0 || ch >= score.NumChannels {
			return nil, fault.New(fmt.Sprintf("mute channel %d out of range", ch),
				fmsg.WithDesc("mute", fmt.Sprintf("--mute takes channels 0-15, got %d", ch)),
				ftag.With(ftag.InvalidArgument))
		}
		enabled[ch] = false
	}
	return enabled, nil
}

func describe(ev midi.DeviceEvent) string {
	if ev.Type == midi.DeviceConnected {
		return "keyboard connected: " + ev.ID
	}
	return "keyboard disconnected: " + ev.ID
}

func issue(err error) string {
	if msg := fmsg.GetIssue(err); msg != "" {
		return msg
	}
	return err.Error()
}

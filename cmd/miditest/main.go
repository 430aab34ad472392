package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-assist/midi"
	"go-assist/score"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	pattern := ""
	if len(os.Args) > 2 {
		pattern = os.Args[2]
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "monitor":
		monitor(pattern)
	case "scale":
		playScale(pattern)
	case "poll":
		pollDevices(pattern)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list              - List all MIDI ports")
	fmt.Println("  monitor [match]   - Print parsed input from a keyboard")
	fmt.Println("  scale [match]     - Play a C major scale to an output")
	fmt.Println("  poll [match]      - Watch keyboards connect and disconnect")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ports, err := midi.Ports()
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for i, p := range ports.Ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range ports.Outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
}

func monitor(pattern string) {
	ports, err := midi.Ports()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	start := time.Now()
	now := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	var kb *midi.KeyboardController
	for _, p := range ports.Ins {
		if midi.MatchPort(p.String(), pattern) {
			kb, err = midi.NewKeyboardController(p.String(), p, now)
			if err != nil {
				fmt.Printf("Error opening %s: %v\n", p.String(), err)
				return
			}
			break
		}
	}
	if kb == nil {
		fmt.Printf("No input matching %q\n", pattern)
		return
	}
	defer kb.Close()

	fmt.Printf("Listening on %s. Ctrl+C to exit.\n", kb.ID())
	for p := range kb.Packets() {
		ev, ok, err := midi.ParseInput(p.Data, p.ReceivedMs)
		switch {
		case err != nil:
			fmt.Printf("%10.1f  % X  malformed: %v\n", p.ReceivedMs, p.Data, err)
		case !ok:
			fmt.Printf("%10.1f  % X  ignored\n", p.ReceivedMs, p.Data)
		default:
			fmt.Printf("%10.1f  % X  %s\n", ev.ReceivedMs, p.Data, ev.Message)
		}
	}
}

func playScale(pattern string) {
	start := time.Now()
	now := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	out, err := midi.OpenOutput(pattern, now)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Using output: %s\n", out.Name())

	// stamped ahead of time; the output holds each message until due
	at := now()
	for _, step := range []int{0, 2, 4, 5, 7, 9, 11, 12} {
		key := score.Clamp(60 + step)
		out.Send(gomidi.NoteOn(0, key, 100), at)
		out.Send(gomidi.NoteOff(0, key), at+200)
		at += 250
	}
	time.Sleep(time.Duration(at-now()+100) * time.Millisecond)
	fmt.Println("Done!")
}

func pollDevices(pattern string) {
	fmt.Println("Polling for device changes every 2 seconds...")
	fmt.Println("Connect/disconnect a keyboard to test. Ctrl+C to exit.")

	lastIn := ""
	lastOut := ""

	for {
		ports, err := midi.Ports()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			time.Sleep(2 * time.Second)
			continue
		}

		var inNames, outNames []string
		for _, p := range ports.Ins {
			inNames = append(inNames, p.String())
		}
		for _, p := range ports.Outs {
			outNames = append(outNames, p.String())
		}

		currentIn := strings.Join(inNames, ",")
		currentOut := strings.Join(outNames, ",")

		if currentIn != lastIn || currentOut != lastOut {
			fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  Inputs: %v\n", inNames)
			fmt.Printf("  Outputs: %v\n", outNames)

			for _, name := range inNames {
				if midi.MatchPort(name, pattern) {
					fmt.Printf("  -> keyboard %s\n", name)
				}
			}

			lastIn = currentIn
			lastOut = currentOut
		}

		time.Sleep(2 * time.Second)
	}
}

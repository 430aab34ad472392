package theme

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

type RGB [3]uint8

// Palette is an ordered color ramp, looked up by normalized position
type Palette struct {
	Name   string
	Colors []RGB
}

// Default is the built-in ramp, dark to bright
func Default() *Palette {
	return &Palette{
		Name: "ember",
		Colors: []RGB{
			{0x1a, 0x12, 0x2b},
			{0x2e, 0x1f, 0x4a},
			{0x5b, 0x3a, 0x7a},
			{0x9a, 0x5f, 0xa8},
			{0xd0, 0x6a, 0x9c},
			{0xe8, 0x5d, 0x75},
			{0xf2, 0x8c, 0x4f},
			{0xf7, 0xc2, 0x4a},
			{0xfa, 0xed, 0x7d},
		},
	}
}

// LoadGPL reads a GIMP palette file
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("open palette", "Could not open palette file "+path),
			ftag.With(ftag.NotFound))
	}
	defer f.Close()

	p, err := ParseGPL(f)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("palette "+path))
	}
	return p, nil
}

// ParseGPL parses GIMP palette text. Lines that are not colors are skipped.
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Name:") {
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		}
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		// R G B, then an optional name
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		var c RGB
		ok := true
		for i := range c {
			v, err := strconv.Atoi(fields[i])
			if err != nil || v < 0 || v > 255 {
				ok = false
				break
			}
			c[i] = uint8(v)
		}
		if ok {
			p.Colors = append(p.Colors, c)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fault.Wrap(err)
	}

	if len(p.Colors) == 0 {
		return nil, fault.New("no colors found", ftag.With(ftag.InvalidArgument))
	}
	return p, nil
}

// Lookup returns the interpolated color at norm, clamped to 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 || len(p.Colors) == 1 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}

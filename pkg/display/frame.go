// Package display renders the five-row deck status panel: a frame
// composer fed from state snapshots, a scrolling "wave" window, and an
// SSD1306 I²C sink with a log fallback.
package display

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Panel geometry. 128x64 OLED with a 6x12 cell grid leaves 21 columns
// and five text rows.
const (
	Columns = 21
	Rows    = 5
)

// Per-row scroll start offsets. Staggering them makes long rows ripple
// like a wave instead of marching in lockstep.
var waveOffsets = [Rows]int{0, 3, 6, 9, 0}

// Frame is one composed panel: raw row texts before scrolling.
type Frame [Rows]string

// Inputs are the snapshot values a frame is composed from.
type Inputs struct {
	Mode      string
	Glyph     string
	Goal      string
	CPUTemp   float64
	DiskPct   float64
	AIState   string
	MoodEmoji string
	LinePulse string // "rx" | "tx" | ""
	LanIP     string
	TailIP    string
}

// Compose builds the five rows from the inputs.
func Compose(in Inputs) Frame {
	var f Frame
	f[0] = fmt.Sprintf("shipOS: %s %s", in.Mode, in.Glyph)

	goal := in.Goal
	if goal == "" {
		goal = "---"
	}
	f[1] = "DEST: " + goal

	f[2] = fmt.Sprintf("TEMP:%2.0fC DISK:%2.0f%%", in.CPUTemp, in.DiskPct)

	switch in.LinePulse {
	case "rx":
		f[3] = "LINE RX ◀"
	case "tx":
		f[3] = "LINE TX ▶"
	default:
		f[3] = fmt.Sprintf("AI: %s %s", in.AIState, in.MoodEmoji)
	}

	tail := in.TailIP
	if tail == "" {
		tail = "OFFLINE"
	}
	lan := in.LanIP
	if lan == "" {
		lan = "-"
	}
	f[4] = fmt.Sprintf("LAN:%s TS:%s", lan, tail)
	return f
}

// Window returns the visible slice of a row at the given tick. Rows that
// fit are left-padded to the full width; longer rows scroll through a
// doubled copy so the wrap-around is seamless.
func Window(text string, tick, rowOffset int) string {
	width := runewidth.StringWidth(text)
	if width <= Columns {
		return runewidth.FillRight(text, Columns)
	}

	// Two spaces separate the end from the re-entering head.
	cycle := width + 2
	doubled := text + "  " + text
	start := (tick + rowOffset) % cycle
	return clipCells(doubled, start, Columns)
}

// clipCells returns the substring covering display cells [start, start+n)
// honoring double-width runes. A wide rune straddling an edge is replaced
// by a space.
func clipCells(s string, start, n int) string {
	var b strings.Builder
	pos := 0
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		end := pos + w
		switch {
		case end <= start:
			// before the window
		case pos >= start+n:
			return runewidth.FillRight(b.String(), n)
		case pos < start || end > start+n:
			// straddles an edge
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
		pos = end
	}
	return runewidth.FillRight(b.String(), n)
}

// Scroll applies the wave windows to a frame at the given tick.
func Scroll(f Frame, tick int) [Rows]string {
	var out [Rows]string
	for i, row := range f {
		out[i] = Window(row, tick, waveOffsets[i])
	}
	return out
}

// BootFrame is shown while the supervisor brings workers up.
func BootFrame(version string) [Rows]string {
	return Scroll(Frame{
		"shipOS " + version,
		"",
		"   casting off...",
		"",
		"",
	}, 0)
}

// ShutdownFrame is guaranteed to be the last thing on the panel.
func ShutdownFrame() [Rows]string {
	return Scroll(Frame{
		"shipOS",
		"",
		"   returning to port",
		"   good night",
		"",
	}, 0)
}

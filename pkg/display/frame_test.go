package display

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeRows(t *testing.T) {
	f := Compose(Inputs{
		Mode:      "autonomous",
		Glyph:     "⛵",
		Goal:      "photo sorting",
		CPUTemp:   52,
		DiskPct:   61,
		AIState:   "planning",
		MoodEmoji: "🙂",
		LanIP:     "192.168.1.20",
		TailIP:    "100.64.0.3",
	})

	assert.Equal(t, "shipOS: autonomous ⛵", f[0])
	assert.Equal(t, "DEST: photo sorting", f[1])
	assert.Equal(t, "TEMP:52C DISK:61%", f[2])
	assert.Equal(t, "AI: planning 🙂", f[3])
	assert.Equal(t, "LAN:192.168.1.20 TS:100.64.0.3", f[4])
}

func TestComposeDefaults(t *testing.T) {
	f := Compose(Inputs{Mode: "safe"})
	assert.Equal(t, "DEST: ---", f[1])
	assert.Equal(t, "LAN:- TS:OFFLINE", f[4])
}

func TestComposeLinePulseOverlay(t *testing.T) {
	f := Compose(Inputs{LinePulse: "rx", AIState: "idle"})
	assert.Equal(t, "LINE RX ◀", f[3])

	f = Compose(Inputs{LinePulse: "tx", AIState: "idle"})
	assert.Equal(t, "LINE TX ▶", f[3])
}

func TestWindowShortRowPads(t *testing.T) {
	got := Window("hello", 7, 3)
	assert.Equal(t, Columns, runewidth.StringWidth(got))
	assert.Equal(t, "hello", strings.TrimRight(got, " "))
}

func TestWindowScrollWraps(t *testing.T) {
	text := "DEST: a very long destination name"
	width := runewidth.StringWidth(text)
	require.Greater(t, width, Columns)

	// Tick 0 shows the head.
	assert.Equal(t, text[:Columns], Window(text, 0, 0))

	// One full cycle later the window is back at the head.
	cycle := width + 2
	assert.Equal(t, Window(text, 0, 0), Window(text, cycle, 0))

	// Mid-cycle windows stay exactly Columns cells wide.
	for tick := 0; tick < cycle; tick++ {
		assert.Equal(t, Columns, runewidth.StringWidth(Window(text, tick, 0)), "tick %d", tick)
	}
}

func TestWindowRowOffsetStaggers(t *testing.T) {
	text := strings.Repeat("abcdefghij", 4)
	assert.NotEqual(t, Window(text, 5, 0), Window(text, 5, 3))
	assert.Equal(t, Window(text, 5, 3), Window(text, 8, 0))
}

func TestClipCellsWideRuneEdges(t *testing.T) {
	// 日 is two cells wide; clipping through its middle yields a space.
	s := "日本語テキスト"
	got := clipCells(s, 1, 4)
	assert.Equal(t, 4, runewidth.StringWidth(got))
	assert.Equal(t, byte(' '), got[0], "leading half of a wide rune becomes a space")

	got = clipCells(s, 0, 3)
	assert.Equal(t, 3, runewidth.StringWidth(got))
	assert.True(t, strings.HasPrefix(got, "日"))
	assert.Equal(t, " ", got[len(got)-1:], "trailing half of a wide rune becomes a space")
}

func TestScrollAppliesWaveOffsets(t *testing.T) {
	long := strings.Repeat("0123456789", 5)
	f := Frame{long, long, long, long, long}
	out := Scroll(f, 4)

	assert.Equal(t, Window(long, 4, 0), out[0])
	assert.Equal(t, Window(long, 4, 3), out[1])
	assert.Equal(t, Window(long, 4, 6), out[2])
	assert.Equal(t, Window(long, 4, 0), out[4])
}

func TestBootAndShutdownFrames(t *testing.T) {
	boot := BootFrame("v1.2.3")
	assert.Contains(t, boot[0], "shipOS v1.2.3")
	assert.Contains(t, boot[2], "casting off")

	down := ShutdownFrame()
	assert.Contains(t, down[2], "returning to port")
	for _, row := range down {
		assert.Equal(t, Columns, runewidth.StringWidth(row))
	}
}

package display

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Sink is where composed rows go: the panel, or the log when absent.
type Sink interface {
	Render(rows [Rows]string) error
	Close() error
}

// logSink mirrors the panel into the debug log. Used on dev machines and
// as the fallback when the I²C device cannot be opened.
type logSink struct {
	logger *slog.Logger
	last   [Rows]string
}

// NewLogSink creates the fallback sink.
func NewLogSink() Sink {
	return &logSink{logger: slog.Default().With("component", "display")}
}

func (l *logSink) Render(rows [Rows]string) error {
	if rows == l.last {
		return nil
	}
	l.last = rows
	l.logger.Debug("Panel", "frame", strings.Join(rows[:], " | "))
	return nil
}

func (l *logSink) Close() error { return nil }

const i2cSlave = 0x0703 // I2C_SLAVE ioctl

// ssd1306 drives a 128x64 panel over /dev/i2c-N. Text only: a 5x7 ASCII
// font in 6-pixel cells, rows on every other 8-pixel page.
type ssd1306 struct {
	f    *os.File
	last [Rows]string
}

// NewSSD1306 opens the device and runs the init sequence.
func NewSSD1306(device string, addr uint8) (Sink, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, int(addr)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("selecting i2c address %#x: %w", addr, err)
	}

	d := &ssd1306{f: f}
	if err := d.init(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("panel init: %w", err)
	}
	return d, nil
}

// init runs the standard SSD1306 128x64 power-up sequence.
func (d *ssd1306) init() error {
	seq := []byte{
		0xAE,       // display off
		0xD5, 0x80, // clock divide
		0xA8, 0x3F, // multiplex 64
		0xD3, 0x00, // display offset
		0x40,       // start line 0
		0x8D, 0x14, // charge pump on
		0x20, 0x00, // horizontal addressing
		0xA1,       // segment remap
		0xC8,       // COM scan dec
		0xDA, 0x12, // COM pins
		0x81, 0x7F, // contrast
		0xD9, 0xF1, // precharge
		0xDB, 0x40, // vcom detect
		0xA4, // resume from RAM
		0xA6, // normal (not inverted)
		0xAF, // display on
	}
	for _, c := range seq {
		if err := d.cmd(c); err != nil {
			return err
		}
	}
	return d.clear()
}

func (d *ssd1306) cmd(c byte) error {
	_, err := d.f.Write([]byte{0x00, c})
	return err
}

func (d *ssd1306) data(p []byte) error {
	// Chunked: small I²C adapters reject long writes.
	for len(p) > 0 {
		n := len(p)
		if n > 32 {
			n = 32
		}
		if _, err := d.f.Write(append([]byte{0x40}, p[:n]...)); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// setWindow addresses the full framebuffer.
func (d *ssd1306) setWindow() error {
	for _, c := range []byte{0x21, 0x00, 0x7F, 0x22, 0x00, 0x07} {
		if err := d.cmd(c); err != nil {
			return err
		}
	}
	return nil
}

func (d *ssd1306) clear() error {
	if err := d.setWindow(); err != nil {
		return err
	}
	return d.data(make([]byte, 128*8))
}

// Render draws the five rows. Unchanged frames are skipped to spare the
// bus.
func (d *ssd1306) Render(rows [Rows]string) error {
	if rows == d.last {
		return nil
	}
	d.last = rows

	buf := make([]byte, 128*8)
	// Five rows on pages 0,1,3,4,6 keeps a blank line between groups.
	pages := [Rows]int{0, 1, 3, 4, 6}
	for i, row := range rows {
		drawRow(buf, pages[i], row)
	}
	if err := d.setWindow(); err != nil {
		return err
	}
	return d.data(buf)
}

func (d *ssd1306) Close() error {
	_ = d.cmd(0xAE)
	return d.f.Close()
}

// drawRow blits a row of text onto one 8-pixel page. Non-ASCII runes
// render as a filled block; the panel font is ASCII only.
func drawRow(buf []byte, page int, text string) {
	col := 0
	for _, r := range text {
		if col+6 > 128 {
			break
		}
		glyph := glyphFor(r)
		base := page*128 + col
		copy(buf[base:base+5], glyph[:])
		// buf[base+5] stays 0: inter-character gap
		col += 6
	}
}

func glyphFor(r rune) [5]byte {
	if r < 0x20 || r > 0x7E {
		if r == ' ' {
			return font5x7[0]
		}
		return [5]byte{0x7F, 0x41, 0x41, 0x41, 0x7F} // hollow block
	}
	return font5x7[r-0x20]
}

// Standard 5x7 font, ASCII 0x20..0x7E, column-major LSB-top.
var font5x7 = [95][5]byte{
	{0x00, 0x00, 0x00, 0x00, 0x00}, // space
	{0x00, 0x00, 0x5F, 0x00, 0x00}, // !
	{0x00, 0x07, 0x00, 0x07, 0x00}, // "
	{0x14, 0x7F, 0x14, 0x7F, 0x14}, // #
	{0x24, 0x2A, 0x7F, 0x2A, 0x12}, // $
	{0x23, 0x13, 0x08, 0x64, 0x62}, // %
	{0x36, 0x49, 0x55, 0x22, 0x50}, // &
	{0x00, 0x05, 0x03, 0x00, 0x00}, // '
	{0x00, 0x1C, 0x22, 0x41, 0x00}, // (
	{0x00, 0x41, 0x22, 0x1C, 0x00}, // )
	{0x14, 0x08, 0x3E, 0x08, 0x14}, // *
	{0x08, 0x08, 0x3E, 0x08, 0x08}, // +
	{0x00, 0x50, 0x30, 0x00, 0x00}, // ,
	{0x08, 0x08, 0x08, 0x08, 0x08}, // -
	{0x00, 0x60, 0x60, 0x00, 0x00}, // .
	{0x20, 0x10, 0x08, 0x04, 0x02}, // /
	{0x3E, 0x51, 0x49, 0x45, 0x3E}, // 0
	{0x00, 0x42, 0x7F, 0x40, 0x00}, // 1
	{0x42, 0x61, 0x51, 0x49, 0x46}, // 2
	{0x21, 0x41, 0x45, 0x4B, 0x31}, // 3
	{0x18, 0x14, 0x12, 0x7F, 0x10}, // 4
	{0x27, 0x45, 0x45, 0x45, 0x39}, // 5
	{0x3C, 0x4A, 0x49, 0x49, 0x30}, // 6
	{0x01, 0x71, 0x09, 0x05, 0x03}, // 7
	{0x36, 0x49, 0x49, 0x49, 0x36}, // 8
	{0x06, 0x49, 0x49, 0x29, 0x1E}, // 9
	{0x00, 0x36, 0x36, 0x00, 0x00}, // :
	{0x00, 0x56, 0x36, 0x00, 0x00}, // ;
	{0x08, 0x14, 0x22, 0x41, 0x00}, // <
	{0x14, 0x14, 0x14, 0x14, 0x14}, // =
	{0x00, 0x41, 0x22, 0x14, 0x08}, // >
	{0x02, 0x01, 0x51, 0x09, 0x06}, // ?
	{0x32, 0x49, 0x79, 0x41, 0x3E}, // @
	{0x7E, 0x11, 0x11, 0x11, 0x7E}, // A
	{0x7F, 0x49, 0x49, 0x49, 0x36}, // B
	{0x3E, 0x41, 0x41, 0x41, 0x22}, // C
	{0x7F, 0x41, 0x41, 0x22, 0x1C}, // D
	{0x7F, 0x49, 0x49, 0x49, 0x41}, // E
	{0x7F, 0x09, 0x09, 0x09, 0x01}, // F
	{0x3E, 0x41, 0x49, 0x49, 0x7A}, // G
	{0x7F, 0x08, 0x08, 0x08, 0x7F}, // H
	{0x00, 0x41, 0x7F, 0x41, 0x00}, // I
	{0x20, 0x40, 0x41, 0x3F, 0x01}, // J
	{0x7F, 0x08, 0x14, 0x22, 0x41}, // K
	{0x7F, 0x40, 0x40, 0x40, 0x40}, // L
	{0x7F, 0x02, 0x0C, 0x02, 0x7F}, // M
	{0x7F, 0x04, 0x08, 0x10, 0x7F}, // N
	{0x3E, 0x41, 0x41, 0x41, 0x3E}, // O
	{0x7F, 0x09, 0x09, 0x09, 0x06}, // P
	{0x3E, 0x41, 0x51, 0x21, 0x5E}, // Q
	{0x7F, 0x09, 0x19, 0x29, 0x46}, // R
	{0x46, 0x49, 0x49, 0x49, 0x31}, // S
	{0x01, 0x01, 0x7F, 0x01, 0x01}, // T
	{0x3F, 0x40, 0x40, 0x40, 0x3F}, // U
	{0x1F, 0x20, 0x40, 0x20, 0x1F}, // V
	{0x3F, 0x40, 0x38, 0x40, 0x3F}, // W
	{0x63, 0x14, 0x08, 0x14, 0x63}, // X
	{0x07, 0x08, 0x70, 0x08, 0x07}, // Y
	{0x61, 0x51, 0x49, 0x45, 0x43}, // Z
	{0x00, 0x7F, 0x41, 0x41, 0x00}, // [
	{0x02, 0x04, 0x08, 0x10, 0x20}, // backslash
	{0x00, 0x41, 0x41, 0x7F, 0x00}, // ]
	{0x04, 0x02, 0x01, 0x02, 0x04}, // ^
	{0x40, 0x40, 0x40, 0x40, 0x40}, // _
	{0x00, 0x01, 0x02, 0x04, 0x00}, // `
	{0x20, 0x54, 0x54, 0x54, 0x78}, // a
	{0x7F, 0x48, 0x44, 0x44, 0x38}, // b
	{0x38, 0x44, 0x44, 0x44, 0x20}, // c
	{0x38, 0x44, 0x44, 0x48, 0x7F}, // d
	{0x38, 0x54, 0x54, 0x54, 0x18}, // e
	{0x08, 0x7E, 0x09, 0x01, 0x02}, // f
	{0x0C, 0x52, 0x52, 0x52, 0x3E}, // g
	{0x7F, 0x08, 0x04, 0x04, 0x78}, // h
	{0x00, 0x44, 0x7D, 0x40, 0x00}, // i
	{0x20, 0x40, 0x44, 0x3D, 0x00}, // j
	{0x7F, 0x10, 0x28, 0x44, 0x00}, // k
	{0x00, 0x41, 0x7F, 0x40, 0x00}, // l
	{0x7C, 0x04, 0x18, 0x04, 0x78}, // m
	{0x7C, 0x08, 0x04, 0x04, 0x78}, // n
	{0x38, 0x44, 0x44, 0x44, 0x38}, // o
	{0x7C, 0x14, 0x14, 0x14, 0x08}, // p
	{0x08, 0x14, 0x14, 0x18, 0x7C}, // q
	{0x7C, 0x08, 0x04, 0x04, 0x08}, // r
	{0x48, 0x54, 0x54, 0x54, 0x20}, // s
	{0x04, 0x3F, 0x44, 0x40, 0x20}, // t
	{0x3C, 0x40, 0x40, 0x20, 0x7C}, // u
	{0x1C, 0x20, 0x40, 0x20, 0x1C}, // v
	{0x3C, 0x40, 0x30, 0x40, 0x3C}, // w
	{0x44, 0x28, 0x10, 0x28, 0x44}, // x
	{0x0C, 0x50, 0x50, 0x50, 0x3C}, // y
	{0x44, 0x64, 0x54, 0x4C, 0x44}, // z
	{0x00, 0x08, 0x36, 0x41, 0x00}, // {
	{0x00, 0x00, 0x7F, 0x00, 0x00}, // |
	{0x00, 0x41, 0x36, 0x08, 0x00}, // }
	{0x08, 0x04, 0x08, 0x10, 0x08}, // ~
}

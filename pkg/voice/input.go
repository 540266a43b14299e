package voice

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"
)

// Linux input_event layout on 64-bit: two int64 time fields, then type,
// code, value.
const inputEventSize = 24

const (
	evKey      = 0x01
	keyRelease = 0
	keyPress   = 1
)

// Hardware keycodes on the deck keypad.
const (
	keyTalk           = 183
	keyMonologueFlip  = 184
	keyStatusRead     = 185
	keyLogbook        = 186
	keyEmergencyStop  = 187
	keyVolumeUp       = 115
	keyVolumeDown     = 114
)

// listenKeys reads the evdev device and dispatches key presses. The
// device disappears across USB resets, so open failures retry forever.
func (a *Arbiter) listenKeys(ctx context.Context) {
	if a.cfg.InputDevice == "" {
		a.logger.Info("No input device configured, key listener disabled")
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := os.Open(a.cfg.InputDevice)
		if err != nil {
			a.logger.Warn("Input device open failed, retrying", "device", a.cfg.InputDevice, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		a.logger.Info("Input device opened", "device", a.cfg.InputDevice)
		a.readEvents(ctx, f)
		_ = f.Close()
	}
}

// readEvents consumes events until read error or cancellation.
func (a *Arbiter) readEvents(ctx context.Context, f *os.File) {
	// Close unblocks the read when the context ends.
	go func() {
		<-ctx.Done()
		_ = f.Close()
	}()

	buf := make([]byte, inputEventSize)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("Input device read failed, reopening", "error", err)
			}
			return
		}
		evType := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))
		if evType != evKey {
			continue
		}
		// Autorepeat (value 2) is ignored; a held talk key keeps recording.
		switch value {
		case keyPress:
			a.dispatchKey(ctx, code)
		case keyRelease:
			a.dispatchKeyRelease(ctx, code)
		}
	}
}

func (a *Arbiter) dispatchKey(ctx context.Context, code uint16) {
	switch code {
	case keyTalk:
		go a.HandleTalkPress(ctx)
	case keyMonologueFlip:
		muted := a.monologue.Toggle()
		a.logger.Info("Monologue toggled", "muted", muted)
		ack := "独り言を再開する。"
		if muted {
			ack = "独り言をやめておく。"
		}
		a.Speak(ack, PriorityNotification)
	case keyStatusRead:
		a.handleStatusRead()
	case keyLogbook:
		a.handleLogbook()
	case keyEmergencyStop:
		go a.handleEmergencyStop(ctx)
	case keyVolumeUp:
		a.nudgeVolume(ctx, true)
	case keyVolumeDown:
		a.nudgeVolume(ctx, false)
	default:
		a.logger.Debug("Unmapped key", "code", code)
	}
}

// dispatchKeyRelease handles the only release-sensitive key: talk, whose
// release ends the push-to-talk capture.
func (a *Arbiter) dispatchKeyRelease(ctx context.Context, code uint16) {
	if code == keyTalk {
		go a.HandleTalkRelease(ctx)
	}
}

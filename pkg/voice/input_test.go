package voice

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyEvent encodes one input_event record the way the kernel lays it out.
func keyEvent(evType uint16, code uint16, value uint32) []byte {
	buf := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(buf[16:18], evType)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], value)
	return buf
}

// startEventReader feeds readEvents from a pipe and reports when it returns.
func startEventReader(t *testing.T, a *Arbiter) (*os.File, chan struct{}) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.readEvents(ctx, r)
	}()
	return w, done
}

func waitEventReader(t *testing.T, w *os.File, done chan struct{}) {
	t.Helper()
	require.NoError(t, w.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readEvents did not return after pipe close")
	}
}

func TestReadEventsPushToTalk(t *testing.T) {
	a := newTestArbiter(t, Hooks{})
	a.stt = &scriptedSTT{err: errors.New("unintelligible")}
	a.record = stubRecorder(t, nil)

	w, done := startEventReader(t, a)

	_, err := w.Write(keyEvent(evKey, keyTalk, keyPress))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.State() == StateListening },
		time.Second, 5*time.Millisecond, "press must start the capture")

	// Autorepeat from a held key changes nothing.
	_, err = w.Write(keyEvent(evKey, keyTalk, 2))
	require.NoError(t, err)

	_, err = w.Write(keyEvent(evKey, keyTalk, keyRelease))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.queue.Len() == 1 },
		time.Second, 5*time.Millisecond, "release must end the capture and run the turn")

	u, ok := a.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, "ごめん、聞き取れなかった", u.Text)
	assert.Equal(t, PriorityTalk, u.Priority)
	assert.Equal(t, StateThinking, a.State())

	waitEventReader(t, w, done)
}

func TestReadEventsMonologueFlip(t *testing.T) {
	a := newTestArbiter(t, Hooks{})
	w, done := startEventReader(t, a)

	_, err := w.Write(keyEvent(evKey, keyMonologueFlip, keyPress))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.monologue.Muted() },
		time.Second, 5*time.Millisecond)

	// Releases are only meaningful for the talk key.
	_, err = w.Write(keyEvent(evKey, keyMonologueFlip, keyRelease))
	require.NoError(t, err)

	waitEventReader(t, w, done)

	assert.True(t, a.monologue.Muted(), "release must not toggle again")
	u, ok := a.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, "独り言をやめておく。", u.Text)
	assert.Equal(t, PriorityNotification, u.Priority)
	assert.Zero(t, a.queue.Len())
}

func TestReadEventsIgnoresNonKeyEvents(t *testing.T) {
	a := newTestArbiter(t, Hooks{})
	var started int
	a.record = stubRecorder(t, &started)
	w, done := startEventReader(t, a)

	// EV_SYN and EV_REL records carry key-like codes but must be skipped.
	_, err := w.Write(keyEvent(0x00, keyTalk, keyPress))
	require.NoError(t, err)
	_, err = w.Write(keyEvent(0x02, keyMonologueFlip, keyPress))
	require.NoError(t, err)

	waitEventReader(t, w, done)

	assert.Zero(t, started)
	assert.False(t, a.monologue.Muted())
	assert.Equal(t, StateIdle, a.State())
}

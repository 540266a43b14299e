package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
)

func TestQueueOrdersByPriorityThenTime(t *testing.T) {
	q := newSpeechQueue()
	base := time.Now()

	q.Push(Utterance{Text: "monologue", Priority: PriorityMonologue, EnqueuedAt: base})
	q.Push(Utterance{Text: "notify-1", Priority: PriorityNotification, EnqueuedAt: base.Add(time.Second)})
	q.Push(Utterance{Text: "talk", Priority: PriorityTalk, EnqueuedAt: base.Add(2 * time.Second)})
	q.Push(Utterance{Text: "notify-2", Priority: PriorityNotification, EnqueuedAt: base.Add(3 * time.Second)})
	q.Push(Utterance{Text: "emergency", Priority: PriorityEmergency, EnqueuedAt: base.Add(4 * time.Second)})

	var got []string
	for {
		u, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, u.Text)
	}
	assert.Equal(t, []string{"talk", "emergency", "notify-1", "notify-2", "monologue"}, got)
}

func TestQueuePopEmpty(t *testing.T) {
	q := newSpeechQueue()
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueueWake(t *testing.T) {
	q := newSpeechQueue()
	q.Push(Utterance{Text: "ahoy", Priority: PriorityTalk})

	select {
	case <-q.wake:
	default:
		t.Fatal("push must signal the wake channel")
	}
}

func TestQueueClose(t *testing.T) {
	q := newSpeechQueue()
	q.Push(Utterance{Text: "pending", Priority: PriorityTalk})
	q.Close()

	assert.Zero(t, q.Len())
	q.Push(Utterance{Text: "late", Priority: PriorityTalk})
	assert.Zero(t, q.Len(), "closed queue rejects pushes")
}

func TestNightNow(t *testing.T) {
	m := &Monologue{cfg: &config.VoiceConfig{QuietHourStart: 22, QuietHourEnd: 6}}

	at := func(hour int) time.Time {
		return time.Date(2026, 8, 24, hour, 30, 0, 0, time.Local)
	}
	assert.True(t, m.nightNow(at(23)))
	assert.True(t, m.nightNow(at(2)))
	assert.True(t, m.nightNow(at(22)))
	assert.False(t, m.nightNow(at(6)))
	assert.False(t, m.nightNow(at(12)))

	// Non-wrapping window.
	m.cfg.QuietHourStart, m.cfg.QuietHourEnd = 1, 5
	assert.True(t, m.nightNow(at(3)))
	assert.False(t, m.nightNow(at(23)))

	// Degenerate window disables quiet hours.
	m.cfg.QuietHourStart, m.cfg.QuietHourEnd = 0, 0
	assert.False(t, m.nightNow(at(0)))
}

func TestIntervalBounds(t *testing.T) {
	m := &Monologue{cfg: &config.VoiceConfig{
		MonologueMinInterval: config.Duration{Duration: 7 * time.Minute},
		MonologueMaxInterval: config.Duration{Duration: 25 * time.Minute},
	}}
	for i := 0; i < 50; i++ {
		d := m.interval()
		require.GreaterOrEqual(t, d, 7*time.Minute)
		require.Less(t, d, 25*time.Minute)
	}
}

func TestPickAvoidsImmediateRepeat(t *testing.T) {
	m := &Monologue{cfg: &config.VoiceConfig{}}
	pool := []string{"a", "b", "c"}

	last := m.pick(pool)
	for i := 0; i < 30; i++ {
		next := m.pick(pool)
		require.NotEqual(t, last, next)
		last = next
	}

	// A single-line pool repeats by necessity.
	assert.Equal(t, "solo", m.pick([]string{"solo"}))
	assert.Equal(t, "solo", m.pick([]string{"solo"}))
}

func TestMuteToggle(t *testing.T) {
	m := &Monologue{cfg: &config.VoiceConfig{}}
	assert.False(t, m.Muted())
	assert.True(t, m.Toggle())
	assert.True(t, m.Muted())
	m.Unmute()
	assert.False(t, m.Muted())
}

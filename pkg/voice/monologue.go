package voice

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/narrator"
)

// ShipConditions feed the monologue's template choice.
type ShipConditions struct {
	CPUHot   bool
	DiskHigh bool
	NetDown  bool
}

// Monologue mutters an in-character line at random intervals when the
// ship is otherwise quiet.
type Monologue struct {
	cfg     *config.VoiceConfig
	arbiter *Arbiter
	logger  *slog.Logger

	// conditions is set by the arbiter owner; nil means always idle pool.
	conditions func() ShipConditions

	mu       sync.Mutex
	muted    bool
	lastLine string
}

func newMonologue(cfg *config.VoiceConfig, a *Arbiter) *Monologue {
	return &Monologue{
		cfg:     cfg,
		arbiter: a,
		logger:  slog.Default().With("component", "monologue"),
	}
}

// SetConditions wires the system-state probe used for template choice.
func (m *Monologue) SetConditions(fn func() ShipConditions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conditions = fn
}

// Mute and Unmute toggle the monologue without touching conversation or
// notification speech.
func (m *Monologue) Mute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = true
}

func (m *Monologue) Unmute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = false
}

// Toggle flips the mute flag and reports the new muted state.
func (m *Monologue) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = !m.muted
	return m.muted
}

// Muted reports the current flag.
func (m *Monologue) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// nightNow reports whether now falls inside the quiet window, which wraps
// midnight (e.g. 22 to 6).
func (m *Monologue) nightNow(now time.Time) bool {
	h := now.Hour()
	start, end := m.cfg.QuietHourStart, m.cfg.QuietHourEnd
	if start == end {
		return false
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

func (m *Monologue) interval() time.Duration {
	min := m.cfg.MonologueMinInterval.Duration
	max := m.cfg.MonologueMaxInterval.Duration
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func (m *Monologue) run(ctx context.Context) {
	for {
		wait := m.interval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		m.utter(time.Now())
	}
}

// utter picks a pool by current conditions and speaks one line from it,
// never the same line twice in a row. Quiet hours only mute the generic
// pools; condition-driven lines still play at night volume.
func (m *Monologue) utter(now time.Time) {
	if m.Muted() {
		return
	}
	if m.arbiter.State() != StateIdle {
		return
	}

	var cond ShipConditions
	m.mu.Lock()
	probe := m.conditions
	m.mu.Unlock()
	if probe != nil {
		cond = probe()
	}

	night := m.nightNow(now)
	var pool []string
	switch {
	case cond.CPUHot:
		pool = narrator.MonologueHotCPU
	case cond.DiskHigh:
		pool = narrator.MonologueHighDisk
	case cond.NetDown:
		pool = narrator.MonologueNetDown
	case night:
		pool = narrator.MonologueNight
	default:
		pool = narrator.MonologueIdle
	}
	if night && !cond.CPUHot && !cond.DiskHigh && !cond.NetDown && m.cfg.MonologueNightVol == 0 {
		return
	}

	line := m.pick(pool)
	if line == "" {
		return
	}
	m.logger.Debug("Monologue", "line", line)
	m.arbiter.Speak(line, PriorityMonologue)
}

func (m *Monologue) pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	line := pool[rand.Intn(len(pool))]
	if line == m.lastLine && len(pool) > 1 {
		for line == m.lastLine {
			line = pool[rand.Intn(len(pool))]
		}
	}
	m.lastLine = line
	return line
}

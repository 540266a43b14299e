// Package modes owns the global operating mode: the snapshot other workers
// read at their tick boundaries, the append-only transition history, and
// manual overrides that suppress calendar-driven switches.
package modes

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

// Transition sources.
const (
	SourceCalendar = "calendar"
	SourceUser     = "user"
	SourceSystem   = "system"
	SourceHealth   = "health"
	SourceFailsafe = "failsafe"
)

// SwitchResult reports the outcome of a mode switch attempt.
type SwitchResult struct {
	Success bool
	Old     string
	New     string
	Reason  string // refusal reason when Success is false
}

// Manager is the single writer of the mode snapshot and history. All other
// subsystems observe mode through the snapshot file.
type Manager struct {
	st     *store.Store
	cfg    *config.Config
	logger *slog.Logger

	mu   sync.Mutex
	snap store.ModeSnapshot
}

// NewManager loads the persisted mode snapshot, falling back to the
// configured initial mode on first boot or corrupt state.
func NewManager(st *store.Store, cfg *config.Config) *Manager {
	m := &Manager{
		st:     st,
		cfg:    cfg,
		logger: slog.Default().With("component", "modes"),
	}
	snap := store.ModeSnapshot{
		Mode:  cfg.Modes.Initial,
		Since: time.Now().Format(time.RFC3339),
	}
	if store.ReadSnapshot(st.ModeSnapshotPath(), &snap) {
		// A transient state must not survive a restart.
		if slices.Contains(config.TransientModes, snap.Mode) {
			resume := snap.Resume
			if resume == "" {
				resume = cfg.Modes.Initial
			}
			snap = store.ModeSnapshot{Mode: resume, Since: time.Now().Format(time.RFC3339)}
		}
	}
	m.snap = snap
	m.persist()
	return m
}

// Current returns a copy of the mode snapshot.
func (m *Manager) Current() store.ModeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Settings returns the behavior record for the current mode.
func (m *Manager) Settings() config.ModeSettings {
	return m.cfg.ModeSettings(m.Current().Mode)
}

// Switch changes the operating mode. Refusals: no-op switches, unknown
// targets, and calendar-sourced switches while a manual override is live.
// Every accepted switch appends to the history stream.
func (m *Manager) Switch(target, reason, source string) SwitchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switchLocked(target, reason, source, false, 0)
}

// Override forces the mode and suppresses calendar switches until the
// deadline. A new override replaces any previous one entirely.
func (m *Manager) Override(target string, duration time.Duration, source string) SwitchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.switchLocked(target, fmt.Sprintf("manual override for %s", duration), source, true, duration)
	if !res.Success && res.Reason == "no-op" {
		// Re-overriding the current mode still (re)arms the deadline.
		m.snap.Override = true
		m.snap.OverrideUntil = time.Now().Add(duration).Format(time.RFC3339)
		m.persist()
		return SwitchResult{Success: true, Old: m.snap.Mode, New: m.snap.Mode}
	}
	return res
}

// ForceTransient enters a watchdog/display-only forced state (storm,
// emergency, shutdown), remembering the steady mode to resume.
func (m *Manager) ForceTransient(state, reason, source string) SwitchResult {
	if !slices.Contains(config.TransientModes, state) {
		return SwitchResult{Success: false, Reason: fmt.Sprintf("not a transient state: %s", state)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resume := m.snap.Resume
	if !slices.Contains(config.TransientModes, m.snap.Mode) {
		resume = m.snap.Mode
	}
	res := m.switchLocked(state, reason, source, false, 0)
	if res.Success {
		m.snap.Resume = resume
		m.persist()
	}
	return res
}

// ClearTransient leaves the current forced state and resumes the remembered
// steady mode. No-op when not in a transient state.
func (m *Manager) ClearTransient(reason, source string) SwitchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(config.TransientModes, m.snap.Mode) {
		return SwitchResult{Success: false, Reason: "not in a transient state"}
	}
	resume := m.snap.Resume
	if resume == "" {
		resume = m.cfg.Modes.Initial
	}
	res := m.switchLocked(resume, reason, source, false, 0)
	if res.Success {
		m.snap.Resume = ""
		m.persist()
	}
	return res
}

// OverrideActive reports whether a manual override is live.
func (m *Manager) OverrideActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overrideActiveLocked(now)
}

func (m *Manager) overrideActiveLocked(now time.Time) bool {
	if !m.snap.Override {
		return false
	}
	until, err := time.Parse(time.RFC3339, m.snap.OverrideUntil)
	if err != nil {
		return false
	}
	return now.Before(until)
}

// switchLocked is the single mutation path: snapshot update plus history
// append. Override() and the transient helpers all funnel through here so
// the history stream is complete.
func (m *Manager) switchLocked(target, reason, source string, override bool, duration time.Duration) SwitchResult {
	known := slices.Contains(config.SteadyModes, target) || slices.Contains(config.TransientModes, target)
	if !known {
		return SwitchResult{Success: false, Old: m.snap.Mode, Reason: fmt.Sprintf("unknown mode: %s", target)}
	}
	if target == m.snap.Mode {
		return SwitchResult{Success: false, Old: m.snap.Mode, New: target, Reason: "no-op"}
	}

	now := time.Now()
	if source == SourceCalendar && m.overrideActiveLocked(now) {
		m.logger.Info("Calendar switch suppressed by override",
			"target", target, "override_until", m.snap.OverrideUntil)
		return SwitchResult{Success: false, Old: m.snap.Mode, New: target, Reason: "override active"}
	}

	old := m.snap.Mode
	m.snap.Mode = target
	m.snap.Since = now.Format(time.RFC3339)
	if override {
		m.snap.Override = true
		m.snap.OverrideUntil = now.Add(duration).Format(time.RFC3339)
	} else if source != SourceCalendar {
		// Any deliberate non-calendar switch retires the override.
		m.snap.Override = false
		m.snap.OverrideUntil = ""
	}
	m.persist()

	transition := store.ModeTransition{
		From:      old,
		To:        target,
		Reason:    reason,
		Source:    source,
		Timestamp: now.Format(time.RFC3339),
	}
	if err := store.AppendJSONL(m.st.ModeHistoryPath(), transition); err != nil {
		m.logger.Error("Failed to append mode history", "error", err)
	}
	m.st.LogEvent(store.LogNavigation, fmt.Sprintf("mode %s → %s", old, target), reason)

	m.logger.Info("Mode switched", "from", old, "to", target, "reason", reason, "source", source)
	return SwitchResult{Success: true, Old: old, New: target}
}

func (m *Manager) persist() {
	if err := store.WriteSnapshot(m.st.ModeSnapshotPath(), m.snap); err != nil {
		m.logger.Error("Failed to write mode snapshot", "error", err)
	}
}

// History returns up to n trailing mode transitions.
func (m *Manager) History(n int) []store.ModeTransition {
	return store.TailJSONL[store.ModeTransition](m.st.ModeHistoryPath(), n)
}

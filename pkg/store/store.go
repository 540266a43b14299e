// Package store owns the on-disk state shared between subsystems: the data
// directory layout, atomic-replace JSON snapshots, and append-only JSONL
// streams. Every durable entity lives in exactly one file with one writer;
// readers copy by value and tolerate missing or corrupt files.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Store resolves well-known paths under the data and run directories and
// provides the snapshot/stream primitives all subsystems share.
type Store struct {
	dataDir string
	runDir  string
	logger  *slog.Logger
}

// New creates a Store rooted at dataDir, with volatile IPC snapshots under
// runDir. The directory skeleton is created up front so writers never race
// on mkdir.
func New(dataDir, runDir string) (*Store, error) {
	s := &Store{
		dataDir: dataDir,
		runDir:  runDir,
		logger:  slog.Default().With("component", "store"),
	}
	for _, dir := range []string{
		s.StateDir(),
		s.ShipsLogDir(),
		s.CommandsDir(),
		s.HistoryDir(),
		s.MemoryDir(),
		s.TopicsDir(),
		s.BillingDir(),
		s.ConfirmationsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return s, nil
}

// DataDir returns the persistent root.
func (s *Store) DataDir() string { return s.dataDir }

// RunDir returns the volatile IPC root (typically /tmp).
func (s *Store) RunDir() string { return s.runDir }

func (s *Store) StateDir() string         { return filepath.Join(s.dataDir, "state") }
func (s *Store) CommandsDir() string      { return filepath.Join(s.dataDir, "commands") }
func (s *Store) HistoryDir() string       { return filepath.Join(s.CommandsDir(), "history") }
func (s *Store) MemoryDir() string        { return filepath.Join(s.dataDir, "memory") }
func (s *Store) TopicsDir() string        { return filepath.Join(s.MemoryDir(), "topics") }
func (s *Store) BillingDir() string       { return filepath.Join(s.dataDir, "billing") }
func (s *Store) ConfirmationsDir() string { return filepath.Join(s.BillingDir(), "confirmations") }
func (s *Store) ShipsLogDir() string      { return filepath.Join(s.StateDir(), "ships_log") }

// Persistent state files.
func (s *Store) ModeSnapshotPath() string  { return filepath.Join(s.StateDir(), "ship_mode.json") }
func (s *Store) ModeHistoryPath() string   { return filepath.Join(s.StateDir(), "mode_history.jsonl") }
func (s *Store) HealthHistoryPath() string { return filepath.Join(s.StateDir(), "health_history.jsonl") }
func (s *Store) MoodLogPath() string       { return filepath.Join(s.StateDir(), "mood_log.jsonl") }
func (s *Store) RecoveryLogPath() string   { return filepath.Join(s.StateDir(), "recovery.jsonl") }
func (s *Store) LastUserTouchPath() string { return filepath.Join(s.StateDir(), "last_user_touch.txt") }
func (s *Store) HeartbeatPath() string     { return filepath.Join(s.StateDir(), "heartbeat.txt") }
func (s *Store) CalendarCachePath() string { return filepath.Join(s.StateDir(), "calendar_cache.json") }
func (s *Store) StartupFlagPath() string   { return filepath.Join(s.StateDir(), "startup_flag.json") }

func (s *Store) InboxPath() string       { return filepath.Join(s.CommandsDir(), "inbox.jsonl") }
func (s *Store) AuditLogPath() string    { return filepath.Join(s.CommandsDir(), "audit.jsonl") }
func (s *Store) DiaryPath() string       { return filepath.Join(s.MemoryDir(), "diary.txt") }
func (s *Store) MemoryIndexPath() string { return filepath.Join(s.MemoryDir(), "index.json") }
func (s *Store) GoalHistoryPath() string { return filepath.Join(s.MemoryDir(), "goal_history.jsonl") }
func (s *Store) UsagePath() string       { return filepath.Join(s.BillingDir(), "usage.json") }

// Volatile IPC snapshots.
func (s *Store) AIStatePath() string    { return filepath.Join(s.runDir, "shipos_ai_state.json") }
func (s *Store) AudioCmdPath() string   { return filepath.Join(s.runDir, "shipos_audio_cmd.json") }
func (s *Store) LineStatusPath() string { return filepath.Join(s.runDir, "shipos_line_status.json") }
func (s *Store) AudioStatePath() string { return filepath.Join(s.runDir, "shipos_audio_state.json") }

// ShipsLogPath returns the per-day ships log stream for the given time.
func (s *Store) ShipsLogPath(t time.Time) string {
	return filepath.Join(s.ShipsLogDir(), t.Format("20060102")+".jsonl")
}

// HistoryDayDir returns the per-day archive directory for consumed events.
func (s *Store) HistoryDayDir(t time.Time) string {
	return filepath.Join(s.HistoryDir(), t.Format("20060102"))
}

// Health write-probes the data root. Used by the watchdog and the doctor
// command to detect read-only or detached storage.
func (s *Store) Health() error {
	probe := filepath.Join(s.dataDir, ".write_probe")
	if err := os.WriteFile(probe, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("data root not writable: %w", err)
	}
	return os.Remove(probe)
}

// FallbackDir creates and returns an emergency data directory under the run
// dir for use when the main root is unwritable.
func (s *Store) FallbackDir() (string, error) {
	dir := filepath.Join(s.runDir, "shipos_fallback")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// TouchUser records the current time as the last user interaction. Mood
// scoring reads this back as idle time.
func (s *Store) TouchUser() {
	if err := os.WriteFile(s.LastUserTouchPath(), []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		s.logger.Error("Failed to record user touch", "error", err)
	}
}

// UserIdle returns the time since the last recorded user interaction.
// Returns 0 and false when no touch has ever been recorded.
func (s *Store) UserIdle(now time.Time) (time.Duration, bool) {
	raw, err := os.ReadFile(s.LastUserTouchPath())
	if err != nil {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return 0, false
	}
	return now.Sub(t), true
}

// Beat updates the planner heartbeat file.
func (s *Store) Beat() {
	if err := os.WriteFile(s.HeartbeatPath(), []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		s.logger.Error("Failed to write heartbeat", "error", err)
	}
}

// HeartbeatAge returns the age of the planner heartbeat. ok is false when
// no heartbeat has been written yet.
func (s *Store) HeartbeatAge(now time.Time) (time.Duration, bool) {
	raw, err := os.ReadFile(s.HeartbeatPath())
	if err != nil {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return 0, false
	}
	return now.Sub(t), true
}

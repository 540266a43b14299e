package store

import "time"

// Agent activity states surfaced on the display and used by mood scoring.
const (
	AIStateIdle         = "Idle"
	AIStatePlanning     = "Planning"
	AIStateActing       = "Acting"
	AIStateMovingFiles  = "Moving Files"
	AIStateError        = "Error"
	AIStateWaitApproval = "Wait Approval"
)

// AIState is the planner's activity snapshot.
type AIState struct {
	State     string `json:"state"`
	Task      string `json:"task"`
	Timestamp string `json:"timestamp"`
}

// WriteAIState publishes the planner activity snapshot. Fail-open: errors
// are logged, the caller continues with its in-memory view.
func (s *Store) WriteAIState(state, task string) {
	snap := AIState{
		State:     state,
		Task:      task,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err := WriteSnapshot(s.AIStatePath(), snap); err != nil {
		s.logger.Error("Failed to write ai-state snapshot", "error", err)
	}
}

// ReadAIState returns the current activity snapshot, defaulting to Idle.
func (s *Store) ReadAIState() AIState {
	snap := AIState{State: AIStateIdle}
	ReadSnapshot(s.AIStatePath(), &snap)
	return snap
}

// LineStatus is the chat RX/TX pulse the display flashes.
type LineStatus struct {
	Direction string `json:"direction"` // rx | tx
	Timestamp string `json:"timestamp"`
}

// PulseLine records a chat receive/transmit pulse for the display.
func (s *Store) PulseLine(direction string) {
	snap := LineStatus{Direction: direction, Timestamp: time.Now().Format(time.RFC3339)}
	if err := WriteSnapshot(s.LineStatusPath(), snap); err != nil {
		s.logger.Error("Failed to write line-status pulse", "error", err)
	}
}

// LinePulse returns the pulse direction if one is fresher than window.
func (s *Store) LinePulse(now time.Time, window time.Duration) (string, bool) {
	var snap LineStatus
	if !ReadSnapshot(s.LineStatusPath(), &snap) {
		return "", false
	}
	t, err := time.Parse(time.RFC3339, snap.Timestamp)
	if err != nil || now.Sub(t) > window {
		return "", false
	}
	return snap.Direction, true
}

// AudioCommand is a chat-driven instruction for the voice arbiter, passed
// through the run-dir snapshot and deduplicated by Timestamp.
type AudioCommand struct {
	Action    string            `json:"action"`
	Params    map[string]string `json:"params,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// WriteAudioCommand drops a command for the voice arbiter's poller.
func (s *Store) WriteAudioCommand(action string, params map[string]string) {
	cmd := AudioCommand{
		Action:    action,
		Params:    params,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}
	if err := WriteSnapshot(s.AudioCmdPath(), cmd); err != nil {
		s.logger.Error("Failed to write audio command", "error", err)
	}
}

// ModeSnapshot is the process-wide operating mode record.
type ModeSnapshot struct {
	Mode          string `json:"mode"`
	Since         string `json:"since"`
	Override      bool   `json:"override"`
	OverrideUntil string `json:"override_until,omitempty"`
	// Steady mode to restore after a transient forced state clears.
	Resume string `json:"resume,omitempty"`
}

// ModeTransition is one append-only mode history entry.
type ModeTransition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

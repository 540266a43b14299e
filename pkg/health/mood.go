package health

import (
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/bcnofne/shipos/pkg/store"
)

// MoodInputs are the host metrics the score is derived from.
type MoodInputs struct {
	CPUTemp     float64
	DiskPercent float64
	NetOK       bool
	IdleMinutes float64
	AIState     string
}

// MoodSample is one scored mood, appended to the mood log and shown on
// the display.
type MoodSample struct {
	Score     int            `json:"score"`
	Emoji     string         `json:"emoji"`
	Line      string         `json:"line"`
	Reasons   map[string]int `json:"reasons"`
	Timestamp string         `json:"timestamp"`
}

// MoodScore derives the 0-100 score deterministically from the inputs.
func MoodScore(in MoodInputs) (int, map[string]int) {
	score := 80
	reasons := make(map[string]int)

	switch {
	case in.CPUTemp >= 75:
		score -= 15
		reasons["cpu_hot"] = -15
	case in.CPUTemp >= 65:
		score -= 8
		reasons["cpu_warm"] = -8
	}

	switch {
	case in.DiskPercent >= 90:
		score -= 12
		reasons["disk_full"] = -12
	case in.DiskPercent >= 80:
		score -= 6
		reasons["disk_high"] = -6
	}

	if !in.NetOK {
		score -= 10
		reasons["net_down"] = -10
	}

	switch {
	case in.IdleMinutes >= 180:
		score -= 8
		reasons["lonely"] = -8
	case in.IdleMinutes >= 60:
		score -= 4
		reasons["quiet"] = -4
	}

	switch in.AIState {
	case store.AIStatePlanning, store.AIStateActing:
		score += 6
		reasons["busy"] = 6
	case store.AIStateError:
		score -= 5
		reasons["trouble"] = -5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, reasons
}

// MoodFace maps a score to its emoji and one-line description.
func MoodFace(score int) (emoji, line string) {
	switch {
	case score >= 80:
		return "⛵", "smooth sailing"
	case score >= 60:
		return "🙂", "steady"
	case score >= 40:
		return "😐", "overcast"
	case score >= 20:
		return "😟", "rough seas"
	default:
		return "🆘", "distress"
	}
}

// Mood samples the current inputs, scores them, appends to the mood log,
// and returns the sample.
func (m *Monitor) Mood() MoodSample {
	now := time.Now()

	in := MoodInputs{AIState: m.st.ReadAIState().State}
	if temp, err := m.CPUTemp(); err == nil {
		in.CPUTemp = temp
	}
	if usage, err := disk.Usage("/"); err == nil {
		in.DiskPercent = usage.UsedPercent
	}
	for _, c := range m.last.Components {
		if c.Name == "network" {
			in.NetOK = c.Status == StatusOK
		}
	}
	if idle, ok := m.st.UserIdle(now); ok {
		in.IdleMinutes = idle.Minutes()
	}

	score, reasons := MoodScore(in)
	emoji, line := MoodFace(score)
	sample := MoodSample{
		Score:     score,
		Emoji:     emoji,
		Line:      line,
		Reasons:   reasons,
		Timestamp: now.Format(time.RFC3339),
	}
	if err := store.AppendJSONL(m.st.MoodLogPath(), sample); err != nil {
		slog.Default().With("component", "health").Error("Failed to append mood log", "error", err)
	}
	return sample
}

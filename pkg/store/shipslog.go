package store

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Ships log categories. Every notable action the system takes is logged
// under one of these so the daily summary reads like a logbook.
const (
	LogNavigation = "navigation" // mode changes, goal changes
	LogEngine     = "engine"     // planner iterations, commands
	LogSignal     = "signal"     // chat in/out, voice
	LogWeather    = "weather"    // health, mood
	LogCargo      = "cargo"      // memory, storage moves
	LogRepair     = "repair"     // watchdog actions
)

// ShipsLogEntry is one line of the per-day ships log.
type ShipsLogEntry struct {
	Category  string `json:"category"`
	Summary   string `json:"summary"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// LogEvent appends a ships-log entry to today's stream.
func (s *Store) LogEvent(category, summary, detail string) {
	entry := ShipsLogEntry{
		Category:  category,
		Summary:   summary,
		Detail:    detail,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err := AppendJSONL(s.ShipsLogPath(time.Now()), entry); err != nil {
		s.logger.Error("Failed to append ships log", "error", err)
	}
}

// DayEntries returns all entries logged on the given day.
func (s *Store) DayEntries(day time.Time) []ShipsLogEntry {
	return ReadJSONL[ShipsLogEntry](s.ShipsLogPath(day))
}

// DayStats counts the given day's entries by category.
func (s *Store) DayStats(day time.Time) map[string]int {
	stats := make(map[string]int)
	for _, e := range s.DayEntries(day) {
		stats[e.Category]++
	}
	return stats
}

// DaySummary renders a short logbook digest for the given day, used by the
// "today" chat command and the end-of-day notification.
func (s *Store) DaySummary(day time.Time) string {
	entries := s.DayEntries(day)
	if len(entries) == 0 {
		return fmt.Sprintf("航海日誌 %s: 記録なし", day.Format("2006-01-02"))
	}

	stats := make(map[string]int)
	for _, e := range entries {
		stats[e.Category]++
	}
	categories := make([]string, 0, len(stats))
	for c := range stats {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var b strings.Builder
	fmt.Fprintf(&b, "航海日誌 %s (%d件)\n", day.Format("2006-01-02"), len(entries))
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %d\n", c, stats[c])
	}

	// Close with the most recent few entries.
	tail := entries
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	b.WriteString("直近:\n")
	for _, e := range tail {
		fmt.Fprintf(&b, "  [%s] %s\n", e.Category, e.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Package inbox carries external user input to the planner: classification
// of raw chat text into query/goal events, the append side used by the
// webhook, and the consume-exactly-once drain used by the planner.
package inbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bcnofne/shipos/pkg/store"
)

// Event types.
const (
	TypeQuery = "query"
	TypeGoal  = "goal"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shipos_inbox_events_total",
	Help: "Inbox events consumed, by type.",
}, []string{"type"})

// Event is one inbox entry.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// Inbox is the JSONL event channel between the chat surface and the
// planner. The planner is the only consumer.
type Inbox struct {
	st     *store.Store
	logger *slog.Logger
}

// New creates the inbox over the shared commands directory.
func New(st *store.Store) *Inbox {
	return &Inbox{
		st:     st,
		logger: slog.Default().With("component", "inbox"),
	}
}

// Submit classifies raw text and appends it as an event.
func (in *Inbox) Submit(text, userID string) Event {
	return in.SubmitTyped(Classify(text), text, userID)
}

// SubmitTyped appends an event with an explicit type.
func (in *Inbox) SubmitTyped(eventType, text, userID string) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Text:      text,
		UserID:    userID,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err := store.AppendJSONL(in.st.InboxPath(), ev); err != nil {
		in.logger.Error("Failed to append inbox event", "error", err)
		return ev
	}
	in.logger.Info("Inbox event submitted", "id", ev.ID, "type", ev.Type, "user", userID)
	return ev
}

// Drain consumes every pending event exactly once: each event is archived
// to the per-day history directory, then the inbox file is truncated.
func (in *Inbox) Drain() []Event {
	events := store.ReadJSONL[Event](in.st.InboxPath())
	if len(events) == 0 {
		return nil
	}

	dayDir := in.st.HistoryDayDir(time.Now())
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		in.logger.Error("Failed to create history dir", "error", err)
		return nil
	}

	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
		path := filepath.Join(dayDir, events[i].ID+".json")
		if err := store.WriteSnapshot(path, events[i]); err != nil {
			in.logger.Error("Failed to archive inbox event", "id", events[i].ID, "error", err)
		}
		eventsTotal.WithLabelValues(events[i].Type).Inc()
	}

	if err := os.Truncate(in.st.InboxPath(), 0); err != nil && !os.IsNotExist(err) {
		in.logger.Error("Failed to truncate inbox", "error", err)
	}

	in.logger.Info("Inbox drained", "count", len(events))
	in.st.LogEvent(store.LogSignal, fmt.Sprintf("inbox drained %d events", len(events)), "")
	return events
}

// interrogative fragments that mark a question.
var queryMarkers = []string{
	"?", "？",
	"何", "誰", "いつ", "どこ", "どう", "なぜ", "どれ", "どの", "いくら",
	"教えて", "調べて", "知ってる", "知っている",
	"できる", "できますか", "可能",
	"とは", "って何", "ですか",
}

// imperative endings that mark a short message as a goal anyway.
var imperativeEndings = []string{
	"して", "しろ", "せよ", "やって", "頼む", "お願い", "整理", "実行",
}

// Classify is the deterministic query/goal heuristic applied to raw chat
// text. Questions and short non-imperative messages are queries; anything
// else replaces the planner's goal.
func Classify(text string) string {
	trimmed := strings.TrimSpace(text)
	for _, marker := range queryMarkers {
		if strings.Contains(trimmed, marker) {
			return TypeQuery
		}
	}
	if len([]rune(trimmed)) <= 10 {
		for _, ending := range imperativeEndings {
			if strings.HasSuffix(trimmed, ending) || strings.Contains(trimmed, ending) {
				return TypeGoal
			}
		}
		return TypeQuery
	}
	return TypeGoal
}

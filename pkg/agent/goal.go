package agent

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bcnofne/shipos/pkg/store"
)

// GoalRecord is one archived goal in goal_history.jsonl.
type GoalRecord struct {
	Goal      string `json:"goal"`
	Source    string `json:"source"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
}

// goalState is the planner's exclusive goal ownership. External actors
// (inbox handler, chat, voice) mutate only through UpdateGoal.
type goalState struct {
	mu             sync.Mutex
	current        string
	source         string
	startedAt      time.Time
	userGoalActive bool

	st     *store.Store
	logger *slog.Logger
}

func newGoalState(st *store.Store, initial string) *goalState {
	return &goalState{
		current:   initial,
		source:    "system",
		startedAt: time.Now(),
		st:        st,
		logger:    slog.Default().With("component", "planner"),
	}
}

// Current returns the active goal and whether the user latch is set.
func (g *goalState) Current() (goal string, userActive bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, g.userGoalActive
}

// UpdateGoal archives the previous goal and installs the new one. A
// user-sourced goal raises the latch that blocks LLM-proposed goals until
// a completion marker releases it.
func (g *goalState) UpdateGoal(text, source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.archiveLocked()
	g.current = text
	g.source = source
	g.startedAt = time.Now()
	g.userGoalActive = source == "user"
	g.logger.Info("Goal updated", "goal", text, "source", source, "user_latch", g.userGoalActive)
}

// AdoptLLMGoal applies the latch rules to a model-proposed next_goal.
// Returns true when the goal actually changed.
func (g *goalState) AdoptLLMGoal(next, say string, markers []string) bool {
	if next == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.userGoalActive && !ContainsCompletionMarker(say, markers) {
		g.logger.Debug("LLM goal suppressed by user latch", "proposed", next)
		return false
	}
	if next == g.current {
		return false
	}
	g.archiveLocked()
	g.current = next
	g.source = "llm"
	g.startedAt = time.Now()
	g.userGoalActive = false
	g.logger.Info("Goal adopted from plan", "goal", next)
	return true
}

func (g *goalState) archiveLocked() {
	if g.current == "" {
		return
	}
	rec := GoalRecord{
		Goal:      g.current,
		Source:    g.source,
		StartedAt: g.startedAt.Format(time.RFC3339),
		EndedAt:   time.Now().Format(time.RFC3339),
	}
	if err := store.AppendJSONL(g.st.GoalHistoryPath(), rec); err != nil {
		g.logger.Error("Failed to archive goal", "error", err)
	}
}

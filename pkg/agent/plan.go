package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MemoryWrite is one memory file the plan asks to persist.
type MemoryWrite struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// SelfImprove is the plan's optional self-modification request. Analyze
// only unless the modifier is explicitly given write scope.
type SelfImprove struct {
	Enabled    bool   `json:"enabled"`
	TargetFile string `json:"target_file"`
	Request    string `json:"request"`
}

// Plan is the single JSON object the planner model must return.
type Plan struct {
	Say         string        `json:"say"`
	Cmd         []string      `json:"cmd"`
	MemoryWrite []MemoryWrite `json:"memory_write"`
	DiaryAppend string        `json:"diary_append"`
	NextGoal    string        `json:"next_goal"`
	SelfImprove SelfImprove   `json:"self_improve"`
}

// requiredPlanKeys must be present in the model's JSON object; a response
// missing any of them is rejected and the iteration skipped.
var requiredPlanKeys = []string{"say", "cmd", "next_goal"}

// ParsePlan extracts the plan object from raw model output, tolerating
// triple-backtick fences and prose around the JSON.
func ParsePlan(raw string) (*Plan, error) {
	body := stripFences(raw)

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	body = body[start : end+1]

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &keys); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}
	for _, key := range requiredPlanKeys {
		if _, ok := keys[key]; !ok {
			return nil, fmt.Errorf("plan missing required key %q", key)
		}
	}

	var plan Plan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return nil, fmt.Errorf("invalid plan fields: %w", err)
	}
	return &plan, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ContainsCompletionMarker reports whether the model's say-text announces
// goal completion, releasing the user-goal latch.
func ContainsCompletionMarker(say string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(say, m) {
			return true
		}
	}
	return false
}

package cost

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bcnofne/shipos/pkg/store"
)

// Confirmation statuses.
const (
	ConfirmPending  = "pending"
	ConfirmApproved = "approved"
	ConfirmDenied   = "denied"
	ConfirmExpired  = "expired"
)

// Confirmation is a request for human approval of an expensive action,
// exchanged through the confirmations directory. The request file is owned
// by the guard; the sibling reply file is owned by whichever chat channel
// answers first.
type Confirmation struct {
	ID                string  `json:"id"`
	ActionDescription string  `json:"action_description"`
	EstimatedCost     float64 `json:"estimated_cost"`
	CreatedAt         string  `json:"created_at"`
	Status            string  `json:"status"`
	ResponseTime      string  `json:"response_time,omitempty"`
	Channel           string  `json:"channel,omitempty"`
	Message           string  `json:"message,omitempty"`
}

func (g *Guard) requestPath(id string) string {
	return filepath.Join(g.st.ConfirmationsDir(), id+".json")
}

func (g *Guard) replyPath(id string) string {
	return filepath.Join(g.st.ConfirmationsDir(), id+".reply.json")
}

// RequestConfirmation writes a confirmation request and polls for a reply
// every second until timeout. On timeout the request is marked expired and
// the action is refused (auto-deny).
func (g *Guard) RequestConfirmation(description string, estimated float64, timeout time.Duration) (bool, string) {
	id := uuid.NewString()[:8]
	conf := Confirmation{
		ID:                id,
		ActionDescription: description,
		EstimatedCost:     estimated,
		CreatedAt:         g.now().Format(time.RFC3339),
		Status:            ConfirmPending,
	}
	if err := store.WriteSnapshot(g.requestPath(id), conf); err != nil {
		g.logger.Error("Failed to write confirmation request", "error", err)
		return false, "confirmation write failed"
	}
	g.logger.Info("Confirmation requested",
		"id", id, "estimated_cost", estimated, "timeout", timeout)

	deadline := g.now().Add(timeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var reply Confirmation
		if store.ReadSnapshot(g.replyPath(id), &reply) {
			conf.Status = reply.Status
			conf.ResponseTime = g.now().Format(time.RFC3339)
			conf.Channel = reply.Channel
			conf.Message = reply.Message
			g.finalize(conf)
			return conf.Status == ConfirmApproved, reply.Message
		}
		if g.now().After(deadline) {
			break
		}
	}

	conf.Status = ConfirmExpired
	conf.ResponseTime = g.now().Format(time.RFC3339)
	g.finalize(conf)
	return false, "auto-expired"
}

// Resolve records an approve/deny reply for a pending confirmation. Called
// from the webhook/notifier path when a matching chat reply arrives. The
// first valid reply wins; later replies are ignored.
func (g *Guard) Resolve(id string, approved bool, channel string) error {
	var conf Confirmation
	if !store.ReadSnapshot(g.requestPath(id), &conf) {
		return fmt.Errorf("unknown confirmation id %q", id)
	}
	if conf.Status != ConfirmPending {
		return fmt.Errorf("confirmation %s already %s", id, conf.Status)
	}
	if _, err := os.Stat(g.replyPath(id)); err == nil {
		return fmt.Errorf("confirmation %s already answered", id)
	}

	status := ConfirmDenied
	message := "denied by user"
	if approved {
		status = ConfirmApproved
		message = "approved by user"
	}
	reply := Confirmation{ID: id, Status: status, Channel: channel, Message: message}
	if err := store.WriteSnapshot(g.replyPath(id), reply); err != nil {
		return fmt.Errorf("writing confirmation reply: %w", err)
	}
	g.logger.Info("Confirmation resolved", "id", id, "status", status, "channel", channel)
	return nil
}

// Pending lists confirmations still awaiting a reply.
func (g *Guard) Pending() []Confirmation {
	entries, err := os.ReadDir(g.st.ConfirmationsDir())
	if err != nil {
		return nil
	}
	var pending []Confirmation
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var conf Confirmation
		if !store.ReadSnapshot(filepath.Join(g.st.ConfirmationsDir(), e.Name()), &conf) {
			continue
		}
		if conf.Status == ConfirmPending {
			pending = append(pending, conf)
		}
	}
	return pending
}

func (g *Guard) finalize(conf Confirmation) {
	if err := store.WriteSnapshot(g.requestPath(conf.ID), conf); err != nil {
		g.logger.Error("Failed to finalize confirmation", "id", conf.ID, "error", err)
	}
	g.st.LogEvent(store.LogSignal,
		fmt.Sprintf("confirmation %s %s", conf.ID, conf.Status), conf.ActionDescription)
}

package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/health"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/narrator"
)

// GetStatus handles GET /api/v1/status.
func (s *Server) GetStatus(c *gin.Context) {
	snap := s.mgr.Current()
	sample := s.monitor.Last()
	state, glyph := narrator.SailState(snap.Mode)

	c.JSON(http.StatusOK, gin.H{
		"mode":       snap.Mode,
		"sail_state": state,
		"glyph":      glyph,
		"since":      snap.Since,
		"override":   snap.Override,
		"goal":       s.goals.CurrentGoal(),
		"ai_state":   s.st.ReadAIState().State,
		"health":     sample.Overall,
		"cost":       s.guard.StatusLine(),
	})
}

// GetGoal handles GET /api/v1/goal.
func (s *Server) GetGoal(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"goal": s.goals.CurrentGoal()})
}

// GoalRequest is the body of POST /api/v1/goal.
type GoalRequest struct {
	Goal string `json:"goal" binding:"required"`
}

// PostGoal handles POST /api/v1/goal: sets a user goal directly.
func (s *Server) PostGoal(c *gin.Context) {
	var req GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.goals.UpdateGoal(req.Goal, "user")
	s.st.TouchUser()
	c.JSON(http.StatusOK, gin.H{"goal": req.Goal})
}

// GetMode handles GET /api/v1/mode.
func (s *Server) GetMode(c *gin.Context) {
	snap := s.mgr.Current()
	c.JSON(http.StatusOK, gin.H{
		"mode":           snap.Mode,
		"since":          snap.Since,
		"override":       snap.Override,
		"override_until": snap.OverrideUntil,
		"history":        s.mgr.History(10),
	})
}

// ModeRequest is the body of POST /api/v1/mode.
type ModeRequest struct {
	Mode        string `json:"mode" binding:"required"`
	Reason      string `json:"reason"`
	OverrideMin int    `json:"override_minutes"`
}

// PostMode handles POST /api/v1/mode: a user-sourced switch, optionally
// with an override window that suppresses calendar switches.
func (s *Server) PostMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !slices.Contains(config.SteadyModes, req.Mode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode: " + req.Mode})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "api request"
	}
	var res modes.SwitchResult
	if req.OverrideMin > 0 {
		res = s.mgr.Override(req.Mode, time.Duration(req.OverrideMin)*time.Minute, modes.SourceUser)
	} else {
		res = s.mgr.Switch(req.Mode, reason, modes.SourceUser)
	}
	if !res.Success {
		c.JSON(http.StatusConflict, gin.H{"error": res.Reason})
		return
	}
	s.st.TouchUser()
	c.JSON(http.StatusOK, gin.H{"old": res.Old, "new": res.New})
}

// EventRequest is the body of POST /api/v1/events, the non-chat way in.
type EventRequest struct {
	Text   string `json:"text" binding:"required"`
	UserID string `json:"user_id"`
}

// PostEvent handles POST /api/v1/events: classifies and enqueues.
func (s *Server) PostEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev := s.in.Submit(req.Text, req.UserID)
	s.st.TouchUser()
	c.JSON(http.StatusAccepted, gin.H{"id": ev.ID, "type": ev.Type})
}

// healthSummary renders the current rollup for chat replies.
func (s *Server) healthSummary() string {
	return health.StatusText(s.monitor.Last())
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/cost"
	"github.com/bcnofne/shipos/pkg/health"
	"github.com/bcnofne/shipos/pkg/inbox"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/notify"
	"github.com/bcnofne/shipos/pkg/store"
)

type stubGoals struct {
	goal   string
	source string
}

func (g *stubGoals) CurrentGoal() string { return g.goal }
func (g *stubGoals) UpdateGoal(text, source string) {
	g.goal = text
	g.source = source
}

func newTestServer(t *testing.T) (*Server, *stubGoals, *store.Store) {
	t.Helper()
	cfg, err := config.Initialize(t.TempDir())
	require.NoError(t, err)
	cfg.Notify.LINEChannelSecret = "testsecret"

	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	goals := &stubGoals{goal: "harbor routine"}
	s := NewServer(cfg, st, inbox.New(st),
		modes.NewManager(st, cfg),
		cost.NewGuard(st, &cfg.Cost),
		health.NewMonitor(&cfg.Health, st),
		notify.NewService(&cfg.Notify, st, nil),
		goals, nil)
	return s, goals, st
}

func TestHealthzEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestStatusEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, config.ModeAutonomous, body["mode"])
	assert.Equal(t, "harbor routine", body["goal"])
	assert.Equal(t, "SAIL", body["sail_state"])
}

func TestPostGoal(t *testing.T) {
	s, goals, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/goal",
		bytes.NewBufferString(`{"goal": "sort the photos"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sort the photos", goals.goal)
	assert.Equal(t, "user", goals.source)
}

func TestPostModeValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/mode", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		s.Router().ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"mode": "storm"}`).Code,
		"transient modes are not requestable")
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
	assert.Equal(t, http.StatusOK, post(`{"mode": "maintenance"}`).Code)
	assert.Equal(t, http.StatusConflict, post(`{"mode": "maintenance"}`).Code, "no-op switch")
}

func TestPostEvent(t *testing.T) {
	s, _, st := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		bytes.NewBufferString(`{"text": "古いログを整理して", "user_id": "U1"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	events := store.ReadJSONL[inbox.Event](st.InboxPath())
	require.Len(t, events, 1)
	assert.Equal(t, inbox.TypeGoal, events[0].Type)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook",
		bytes.NewBufferString(`{"events": []}`))
	req.Header.Set("X-Line-Signature", "forged")
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCommandVocabulary(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		text    string
		handled bool
		reply   string
	}{
		{"status", true, "DEST:"},
		{"health", true, "健康状態"},
		{"logbook", true, ""},
		{"today", true, ""},
		{"mute", true, "独り言"},
		{"unmute", true, "独り言"},
		{"read status", true, "読み上げる"},
		{"speak こんにちは", true, "読み上げる"},
		{"voice ship-v2", true, "ship-v2"},
		{"mode warp", true, "切替できない"},
		{"approve:zzzz9999", true, "見つからない"},
		{"こんにちは、調子はどう?", false, ""},
	}

	// Run stop first so "start" sees safe mode, then flip back.
	reply, handled := s.handleCommand("stop")
	require.True(t, handled)
	assert.Contains(t, reply, "停止")
	reply, handled = s.handleCommand("start")
	require.True(t, handled)
	assert.Contains(t, reply, "出航")

	for _, tt := range tests {
		reply, handled := s.handleCommand(tt.text)
		assert.Equal(t, tt.handled, handled, tt.text)
		if tt.reply != "" {
			assert.Contains(t, reply, tt.reply, tt.text)
		}
	}
}

func TestLogOnOff(t *testing.T) {
	s, _, _ := newTestServer(t)

	_, handled := s.handleCommand("log on")
	require.True(t, handled)
	assert.True(t, s.notifier.ExecLogOpen())

	_, handled = s.handleCommand("log off")
	require.True(t, handled)
	assert.False(t, s.notifier.ExecLogOpen())
}

func TestModeCommand(t *testing.T) {
	s, _, _ := newTestServer(t)
	reply, handled := s.handleCommand("mode maintenance")
	require.True(t, handled)
	assert.Contains(t, reply, "maintenance")
	assert.Equal(t, config.ModeMaintenance, s.mgr.Current().Mode)
}

func TestStatusReplyShape(t *testing.T) {
	s, _, _ := newTestServer(t)
	reply := s.statusReply()
	for _, want := range []string{"DEST: harbor routine", "AI:", "本日"} {
		assert.True(t, strings.Contains(reply, want), "missing %q in %q", want, reply)
	}
}

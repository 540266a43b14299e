package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		level string
		kind  string
		want  bool
	}{
		{config.NotifyAll, KindExecutionLog, true},
		{config.NotifyAll, KindStatus, true},

		{config.NotifyCritical, KindCostStop, true},
		{config.NotifyCritical, KindHealthCrit, true},
		{config.NotifyCritical, KindError, true},
		{config.NotifyCritical, KindStatus, false},
		{config.NotifyCritical, KindExecutionLog, false},

		{config.NotifyStatus, KindStatus, true},
		{config.NotifyStatus, KindStartup, true},
		{config.NotifyStatus, KindShutdown, true},
		{config.NotifyStatus, KindCostStop, true},
		{config.NotifyStatus, KindResponse, false},

		{config.NotifyResponsive, KindResponse, true},
		{config.NotifyResponsive, KindError, true},
		{config.NotifyResponsive, KindStatus, false},

		// minimal admits the full critical set: power save still surfaces
		// cost alerts and errors.
		{config.NotifyMinimal, KindCostStop, true},
		{config.NotifyMinimal, KindHealthCrit, true},
		{config.NotifyMinimal, KindCostAlert, true},
		{config.NotifyMinimal, KindError, true},
		{config.NotifyMinimal, KindStatus, false},
		{config.NotifyMinimal, KindExecutionLog, false},

		{"bogus_level", KindError, true},
		{"bogus_level", KindStatus, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, allowed(tt.level, tt.kind), "%s/%s", tt.level, tt.kind)
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	cfg := &config.NotifyConfig{
		ExecLogWindow:   config.Duration{Duration: time.Hour},
		StartupCooldown: config.Duration{Duration: 5 * time.Minute},
	}
	return NewService(cfg, st, func() string { return config.NotifyAll })
}

func TestExecLogWindow(t *testing.T) {
	s := newTestService(t)
	assert.False(t, s.ExecLogOpen(), "closed until log on")

	s.EnableExecLog()
	assert.True(t, s.ExecLogOpen())

	s.DisableExecLog()
	assert.False(t, s.ExecLogOpen())
}

func TestExecLogEnabledByConfig(t *testing.T) {
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	s := NewService(&config.NotifyConfig{ExecLogEnabled: true}, st, nil)
	assert.True(t, s.ExecLogOpen())
}

func TestStartupCooldown(t *testing.T) {
	s := newTestService(t)

	// No channels configured: Event is a no-op, but the flag still lands.
	s.NotifyStartup("出航")

	var flag startupFlag
	require.True(t, store.ReadSnapshot(s.st.StartupFlagPath(), &flag))
	first := flag.LastStartup

	s.NotifyStartup("出航")
	require.True(t, store.ReadSnapshot(s.st.StartupFlagPath(), &flag))
	assert.Equal(t, first, flag.LastStartup, "second push within cooldown must not refresh the flag")
}

func TestNilServiceIsSafe(t *testing.T) {
	var s *Service
	s.Event(KindError, "nobody home")
	s.ExecLog("nobody home")
	assert.Nil(t, s.LINE())
}

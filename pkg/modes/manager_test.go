package modes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

func testConfig() *config.Config {
	cfg, err := config.Initialize("/nonexistent-config-dir")
	if err != nil {
		panic(err)
	}
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	return NewManager(st, testConfig()), st
}

func TestSwitchRecordsHistory(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Equal(t, config.ModeAutonomous, m.Current().Mode)

	res := m.Switch(config.ModeMaintenance, "scheduled upkeep", SourceSystem)
	require.True(t, res.Success)
	assert.Equal(t, config.ModeAutonomous, res.Old)
	assert.Equal(t, config.ModeMaintenance, res.New)

	history := m.History(10)
	require.Len(t, history, 1)
	assert.Equal(t, "scheduled upkeep", history[0].Reason)
	assert.Equal(t, SourceSystem, history[0].Source)
}

func TestSwitchRefusals(t *testing.T) {
	m, _ := newTestManager(t)

	res := m.Switch(config.ModeAutonomous, "same mode", SourceUser)
	assert.False(t, res.Success)
	assert.Equal(t, "no-op", res.Reason)

	res = m.Switch("hyperspace", "bogus", SourceUser)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "unknown mode")

	assert.Empty(t, m.History(10), "refusals must not pollute history")
}

func TestSettingsFollowModeTable(t *testing.T) {
	m, _ := newTestManager(t)

	// Autonomous: housekeeping on, monologue bias system.
	s := m.Settings()
	assert.True(t, s.AutonomousTasks)
	assert.Equal(t, "system", s.PriorityBias)

	// Power save turns autonomous housekeeping off and silences the bias,
	// which is what gates the scheduler's archive and cleanup tasks.
	require.True(t, m.Switch(config.ModePowerSave, "battery", SourceUser).Success)
	s = m.Settings()
	assert.False(t, s.AutonomousTasks)
	assert.Equal(t, "none", s.PriorityBias)

	require.True(t, m.Switch(config.ModeMaintenance, "dock", SourceUser).Success)
	s = m.Settings()
	assert.True(t, s.AutonomousTasks)
	assert.Equal(t, "maintenance", s.PriorityBias)
}

func TestOverrideSuppressesCalendar(t *testing.T) {
	m, _ := newTestManager(t)

	res := m.Override(config.ModeUserFirst, time.Hour, SourceUser)
	require.True(t, res.Success)
	assert.True(t, m.OverrideActive(time.Now()))

	// Calendar switches are refused until the deadline.
	res = m.Switch(config.ModeAutonomous, "off hours", SourceCalendar)
	assert.False(t, res.Success)
	assert.Equal(t, "override active", res.Reason)

	// But a deliberate user switch goes through and retires the override.
	res = m.Switch(config.ModeAutonomous, "back to sea", SourceUser)
	require.True(t, res.Success)
	assert.False(t, m.OverrideActive(time.Now()))
}

func TestOverrideExpires(t *testing.T) {
	m, _ := newTestManager(t)

	m.Override(config.ModeUserFirst, time.Minute, SourceUser)
	assert.True(t, m.OverrideActive(time.Now()))
	assert.False(t, m.OverrideActive(time.Now().Add(2*time.Minute)))
}

func TestReOverrideSameModeRearmsDeadline(t *testing.T) {
	m, _ := newTestManager(t)

	m.Override(config.ModeUserFirst, time.Minute, SourceUser)
	res := m.Override(config.ModeUserFirst, time.Hour, SourceUser)
	require.True(t, res.Success)
	assert.True(t, m.OverrideActive(time.Now().Add(30*time.Minute)))
}

func TestTransientResumeOnRestart(t *testing.T) {
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	cfg := testConfig()

	m := NewManager(st, cfg)
	m.Switch(config.ModeMaintenance, "docked", SourceUser)
	res := m.ForceTransient(config.ModeStorm, "cpu load high", SourceHealth)
	require.True(t, res.Success)
	assert.Equal(t, config.ModeStorm, m.Current().Mode)
	assert.Equal(t, config.ModeMaintenance, m.Current().Resume)

	// A fresh manager over the same store must not wake up in a storm.
	m2 := NewManager(st, cfg)
	assert.Equal(t, config.ModeMaintenance, m2.Current().Mode)
	assert.Empty(t, m2.Current().Resume)
}

func TestClearTransient(t *testing.T) {
	m, _ := newTestManager(t)

	res := m.ClearTransient("nothing to clear", SourceHealth)
	assert.False(t, res.Success)

	m.ForceTransient(config.ModeEmergency, "disk full", SourceHealth)
	res = m.ClearTransient("readings recovered", SourceHealth)
	require.True(t, res.Success)
	assert.Equal(t, config.ModeAutonomous, m.Current().Mode)
}

func TestSettingsForTransientBorrowSafe(t *testing.T) {
	m, _ := newTestManager(t)
	m.ForceTransient(config.ModeEmergency, "thermal", SourceHealth)
	assert.Equal(t, 0, m.Settings().IterationIntervalSec)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDefaults(t *testing.T) {
	// Empty config dir: every value comes from the built-in defaults.
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ModeAutonomous, cfg.Modes.Initial)
	assert.Len(t, cfg.Modes.Table, 5)
	assert.Equal(t, 300, cfg.Modes.Table[ModeAutonomous].IterationIntervalSec)
	assert.Equal(t, 0, cfg.Modes.Table[ModeSafe].IterationIntervalSec)
	assert.Equal(t, NotifyMinimal, cfg.Modes.Table[ModePowerSave].NotifyLevel)

	assert.Equal(t, 200.0, cfg.Cost.Normal.Warning)
	assert.Equal(t, 300.0, cfg.Cost.Normal.Stop)
	assert.Equal(t, 1000.0, cfg.Cost.SpecialDay.Stop)
	assert.Equal(t, 10*time.Minute, cfg.Cost.ConfirmationTimeout.Duration)

	assert.Equal(t, 150*time.Millisecond, cfg.Display.Tick.Duration)
	assert.Equal(t, uint8(0x3C), cfg.Display.I2CAddress)
	assert.Contains(t, cfg.LLM.CompletionMarkers, "完了")
}

func TestInitializeFromYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
data_dir: /data/ship
modes:
  initial: user_first
  table:
    autonomous:
      iteration_interval_sec: 120
      notify_level: all
      autonomous_tasks_enabled: true
      priority_bias: system
llm:
  model: gpt-4o
  request_timeout: 45s
watchdog:
  interval: 2m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, "/data/ship", cfg.DataDir)
	assert.Equal(t, ModeUserFirst, cfg.Modes.Initial)
	// User entry overrides the default; untouched modes keep defaults.
	assert.Equal(t, 120, cfg.Modes.Table[ModeAutonomous].IterationIntervalSec)
	assert.Equal(t, 60, cfg.Modes.Table[ModeUserFirst].IterationIntervalSec)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.RequestTimeout.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Watchdog.Interval.Duration)
}

func TestInitializeRejectsBadMode(t *testing.T) {
	dir := t.TempDir()
	yaml := `
modes:
  initial: warp_speed
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warp_speed")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SHIPOS_TEST_TOKEN", "sekrit")
	out := ExpandEnv([]byte("token: {{.SHIPOS_TEST_TOKEN}}"))
	assert.Equal(t, "token: sekrit", string(out))

	// Plain YAML without template syntax passes through untouched.
	out = ExpandEnv([]byte("token: literal$value"))
	assert.Equal(t, "token: literal$value", string(out))
}

func TestModeSettingsFallback(t *testing.T) {
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)

	// Transient states borrow the safe-mode record.
	s := cfg.ModeSettings(ModeEmergency)
	assert.Equal(t, cfg.Modes.Table[ModeSafe], s)

	s = cfg.ModeSettings(ModeAutonomous)
	assert.Equal(t, 300, s.IterationIntervalSec)
}

func TestOverlayEnv(t *testing.T) {
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "tok123")
	t.Setenv("LINE_EXEC_LOG_ENABLED", "true")

	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "tok123", cfg.Notify.LINEChannelToken)
	assert.True(t, cfg.Notify.ExecLogEnabled)
}

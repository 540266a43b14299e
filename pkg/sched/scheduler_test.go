package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
)

func TestTaskShouldRun(t *testing.T) {
	now := time.Now()
	cond := true
	task := &Task{
		Name:         "archive",
		Interval:     time.Hour,
		Condition:    func() bool { return cond },
		AllowedModes: []string{config.ModeAutonomous, config.ModeMaintenance},
	}

	assert.True(t, task.shouldRun(now, config.ModeAutonomous), "never ran, due")

	task.LastRun = now.Add(-30 * time.Minute)
	assert.False(t, task.shouldRun(now, config.ModeAutonomous), "not due yet")

	task.LastRun = now.Add(-2 * time.Hour)
	assert.False(t, task.shouldRun(now, config.ModePowerSave), "mode not allowed")
	assert.True(t, task.shouldRun(now, config.ModeMaintenance))

	cond = false
	assert.False(t, task.shouldRun(now, config.ModeMaintenance), "condition vetoes")
}

func TestTaskUnconditional(t *testing.T) {
	task := &Task{Name: "probe", Interval: time.Minute}
	assert.True(t, task.shouldRun(time.Now(), "any_mode"))
}

func TestRunDue(t *testing.T) {
	s := New(&config.SchedConfig{Tick: config.Duration{Duration: time.Second}},
		func() string { return config.ModeAutonomous })

	var ranA, ranB int
	s.Register("a", func(ctx context.Context) (string, error) {
		ranA++
		return "done", nil
	}, time.Hour, nil)
	s.Register("b", func(ctx context.Context) (string, error) {
		ranB++
		return "", errors.New("boom")
	}, time.Hour, nil, config.ModeMaintenance)

	results := s.RunDue(context.Background(), config.ModeAutonomous)
	require.Len(t, results, 1, "b is gated out by mode")
	assert.Equal(t, "a", results[0].Name)
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, ranA)
	assert.Zero(t, ranB)

	// a just ran; nothing due on the next sweep.
	assert.Empty(t, s.RunDue(context.Background(), config.ModeAutonomous))

	results = s.RunDue(context.Background(), config.ModeMaintenance)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Error(t, results[0].Err)
}

func TestStats(t *testing.T) {
	s := New(&config.SchedConfig{}, func() string { return config.ModeAutonomous })
	s.Register("probe", func(ctx context.Context) (string, error) { return "", nil }, time.Minute, nil)

	assert.Contains(t, s.Stats(), "probe: 0 runs, last never")

	s.RunDue(context.Background(), config.ModeAutonomous)
	assert.Contains(t, s.Stats(), "probe: 1 runs")
}

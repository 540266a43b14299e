package narrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bcnofne/shipos/pkg/config"
)

func TestSailState(t *testing.T) {
	tests := []struct {
		mode  string
		state string
		glyph string
	}{
		{config.ModeAutonomous, SailUnderway, "⛵"},
		{config.ModeUserFirst, SailInPort, "⚓"},
		{config.ModeMaintenance, SailDocked, "🔧"},
		{config.ModePowerSave, SailAnchored, "🌙"},
		{config.ModeStorm, SailDistress, "🌊"},
		{config.ModeEmergency, SailDistress, "🆘"},
		{config.ModeSafe, SailDistress, "🆘"},
		{"unknown", SailInPort, "⚓"},
	}
	for _, tt := range tests {
		state, glyph := SailState(tt.mode)
		assert.Equal(t, tt.state, state, tt.mode)
		assert.Equal(t, tt.glyph, glyph, tt.mode)
	}
}

func TestModeChange(t *testing.T) {
	msg := ModeChange("autonomous", "maintenance", "定期整備")
	assert.Contains(t, msg, "autonomous → maintenance")
	assert.Contains(t, msg, "定期整備")

	msg = ModeChange("autonomous", "user_first", "")
	assert.NotContains(t, msg, "（")
}

func TestHealthAlert(t *testing.T) {
	assert.Contains(t, HealthAlert("CRITICAL", "cpu 85C"), "緊急事態")
	assert.Contains(t, HealthAlert("WARN", "disk 82%"), "荒天注意")
}

func TestCostAlert(t *testing.T) {
	assert.Contains(t, CostAlert("stop", 350, 300), "停止")
	assert.Contains(t, CostAlert("alert", 850, 1000), "残りわずか")
	assert.Contains(t, CostAlert("warning", 220, 300), "注意")
}

func TestMonologuePoolsNonEmpty(t *testing.T) {
	for name, pool := range map[string][]string{
		"hot_cpu":   MonologueHotCPU,
		"high_disk": MonologueHighDisk,
		"net_down":  MonologueNetDown,
		"night":     MonologueNight,
		"idle":      MonologueIdle,
	} {
		assert.NotEmpty(t, pool, name)
	}
}

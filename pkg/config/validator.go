package config

import (
	"fmt"
	"slices"
)

var validNotifyLevels = []string{NotifyAll, NotifyCritical, NotifyStatus, NotifyResponsive, NotifyMinimal}

var validPriorityBiases = []string{"system", "user", "maintenance", "none", "safety"}

// validate checks cross-field consistency after defaults are applied.
func validate(cfg *Config) error {
	if _, ok := cfg.Modes.Table[cfg.Modes.Initial]; !ok {
		return fmt.Errorf("initial mode %q has no mode table entry", cfg.Modes.Initial)
	}
	for _, name := range SteadyModes {
		if _, ok := cfg.Modes.Table[name]; !ok {
			return fmt.Errorf("mode table missing required mode %q", name)
		}
	}
	for name, settings := range cfg.Modes.Table {
		if !slices.Contains(validNotifyLevels, settings.NotifyLevel) {
			return fmt.Errorf("mode %q: invalid notify_level %q", name, settings.NotifyLevel)
		}
		if !slices.Contains(validPriorityBiases, settings.PriorityBias) {
			return fmt.Errorf("mode %q: invalid priority_bias %q", name, settings.PriorityBias)
		}
		if settings.IterationIntervalSec < 0 {
			return fmt.Errorf("mode %q: negative iteration interval", name)
		}
	}

	if cfg.Cost.Normal.Stop <= cfg.Cost.Normal.Warning {
		return fmt.Errorf("cost normal: stop (%.0f) must exceed warning (%.0f)",
			cfg.Cost.Normal.Stop, cfg.Cost.Normal.Warning)
	}
	if cfg.Cost.SpecialDay.Stop <= cfg.Cost.SpecialDay.Warning {
		return fmt.Errorf("cost special_day: stop (%.0f) must exceed warning (%.0f)",
			cfg.Cost.SpecialDay.Stop, cfg.Cost.SpecialDay.Warning)
	}
	if _, ok := cfg.Cost.Prices[cfg.LLM.Model]; !ok {
		return fmt.Errorf("no price entry for planner model %q", cfg.LLM.Model)
	}

	if cfg.Health.CPUTempCrit <= cfg.Health.CPUTempWarn {
		return fmt.Errorf("health: cpu_temp_crit must exceed cpu_temp_warn")
	}
	if cfg.Health.HeartbeatCrit.Duration <= cfg.Health.HeartbeatWarn.Duration {
		return fmt.Errorf("health: heartbeat_crit must exceed heartbeat_warn")
	}

	if len(cfg.Exec.AllowedRoots) == 0 {
		return fmt.Errorf("exec: allowed_roots must not be empty")
	}

	if cfg.Voice.MonologueMaxInterval.Duration < cfg.Voice.MonologueMinInterval.Duration {
		return fmt.Errorf("voice: monologue_max_interval below monologue_min_interval")
	}

	switch cfg.Voice.STTEngine {
	case "local", "remote":
	default:
		return fmt.Errorf("voice: unknown stt_engine %q", cfg.Voice.STTEngine)
	}
	switch cfg.Voice.TTSEngine {
	case "local", "remote", "hybrid":
	default:
		return fmt.Errorf("voice: unknown tts_engine %q", cfg.Voice.TTSEngine)
	}

	return nil
}

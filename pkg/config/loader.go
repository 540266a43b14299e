package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the expected name of the main config file inside the
// config directory.
const ConfigFileName = "shipos.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read shipos.yaml from configDir (a missing file yields pure defaults)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Apply built-in defaults (mode table, prices, thresholds)
//  5. Overlay well-known environment variables
//  6. Validate
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	applyDefaults(cfg)
	overlayEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"data_dir", cfg.DataDir,
		"initial_mode", cfg.Modes.Initial,
		"modes", len(cfg.Modes.Table),
		"models", len(cfg.Cost.Prices))

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := &Config{}

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No config file found, using built-in defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	expanded := ExpandEnv(data)
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// overlayEnv applies the well-known environment variables on top of the
// file-derived values. Env wins so deployments can keep secrets out of YAML.
func overlayEnv(cfg *Config) {
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notify.DiscordWebhookURL = v
	}
	if v := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"); v != "" {
		cfg.Notify.LINEChannelToken = v
	}
	if v := os.Getenv("LINE_CHANNEL_SECRET"); v != "" {
		cfg.Notify.LINEChannelSecret = v
	}
	if v := os.Getenv("LINE_TARGET_USER_ID"); v != "" {
		cfg.Notify.LINETargetUserID = v
	}
	if v := os.Getenv("CALENDAR_ICS_URL"); v != "" {
		cfg.Sched.CalendarICSURL = v
	}
	if v := os.Getenv("QUICK_RESPONSE_MODEL"); v != "" {
		cfg.LLM.QuickResponseModel = v
	}
	if v := os.Getenv("LINE_EXEC_LOG_ENABLED"); v == "1" || v == "true" {
		cfg.Notify.ExecLogEnabled = true
	}
}

// ModeSettings returns the settings record for the given mode. Transient
// states borrow the safe-mode settings so subsystems always get a record.
func (c *Config) ModeSettings(mode string) ModeSettings {
	if s, ok := c.Modes.Table[mode]; ok {
		return s
	}
	return c.Modes.Table[ModeSafe]
}

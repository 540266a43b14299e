package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration with YAML string parsing ("5m", "90s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Config is the fully loaded and validated runtime configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
	RunDir  string `yaml:"run_dir"`
	LogDir  string `yaml:"log_dir"`

	Modes    ModesConfig    `yaml:"modes"`
	LLM      LLMConfig      `yaml:"llm"`
	Cost     CostConfig     `yaml:"cost"`
	Exec     ExecConfig     `yaml:"exec"`
	Voice    VoiceConfig    `yaml:"voice"`
	Health   HealthConfig   `yaml:"health"`
	Sched    SchedConfig    `yaml:"scheduler"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	HTTP     HTTPConfig     `yaml:"http"`
	Display  DisplayConfig  `yaml:"display"`
}

// ModeSettings is the per-mode behavior record every subsystem honors.
type ModeSettings struct {
	IterationIntervalSec int    `yaml:"iteration_interval_sec"`
	NotifyLevel          string `yaml:"notify_level"`
	AutonomousTasks      bool   `yaml:"autonomous_tasks_enabled"`
	PriorityBias         string `yaml:"priority_bias"`
}

// ModesConfig holds the mode table and the initial mode.
type ModesConfig struct {
	Initial string                  `yaml:"initial"`
	Table   map[string]ModeSettings `yaml:"table"`
}

// LLMConfig configures the planner and quick-responder models.
type LLMConfig struct {
	Model              string   `yaml:"model"`
	QuickResponseModel string   `yaml:"quick_response_model"`
	Temperature        float64  `yaml:"temperature"`
	QuickTemperature   float64  `yaml:"quick_temperature"`
	MaxTokens          int      `yaml:"max_tokens"`
	QuickMaxTokens     int      `yaml:"quick_max_tokens"`
	RequestTimeout     Duration `yaml:"request_timeout"`
	CompletionMarkers  []string `yaml:"completion_markers"`
}

// CostThresholds is one rung ladder of daily spend limits (yen).
type CostThresholds struct {
	Warning float64 `yaml:"warning"`
	Alert   float64 `yaml:"alert"`
	Stop    float64 `yaml:"stop"`
}

// ModelPrice is per-1K-token pricing for one model.
type ModelPrice struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// CostConfig configures the cost guard.
type CostConfig struct {
	Normal              CostThresholds        `yaml:"normal"`
	SpecialDay          CostThresholds        `yaml:"special_day"`
	Prices              map[string]ModelPrice `yaml:"prices"`
	ConfirmationTimeout Duration              `yaml:"confirmation_timeout"`
}

// ExecConfig configures the command executor sandbox.
type ExecConfig struct {
	AllowedPrograms []string `yaml:"allowed_programs"`
	AllowedRoots    []string `yaml:"allowed_roots"`
	ServiceVerbs    []string `yaml:"service_verbs"`
	Timeout         Duration `yaml:"timeout"`
	OutputLimit     int      `yaml:"output_limit_bytes"`
}

// VoiceConfig configures the voice arbiter and its engines.
type VoiceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	InputDevice string `yaml:"input_device"`
	AudioSink   string `yaml:"audio_sink"`

	STTEngine string `yaml:"stt_engine"` // local | remote
	TTSEngine string `yaml:"tts_engine"` // local | remote | hybrid
	TTSVoice  string `yaml:"tts_voice"`
	CacheDir  string `yaml:"tts_cache_dir"`

	WhisperBin   string `yaml:"whisper_bin"`
	WhisperModel string `yaml:"whisper_model"`
	PiperBin     string `yaml:"piper_bin"`
	PiperModel   string `yaml:"piper_model"`

	MaxVolume          int `yaml:"max_volume"`
	ConversationVolume int `yaml:"conversation_volume"`
	NotificationVolume int `yaml:"notification_volume"`
	MonologueVolume    int `yaml:"monologue_volume"`
	MonologueNightVol  int `yaml:"monologue_night_volume"`
	VolumeStep         int `yaml:"volume_step"`

	MonologueMinInterval Duration `yaml:"monologue_min_interval"`
	MonologueMaxInterval Duration `yaml:"monologue_max_interval"`
	QuietHourStart       int      `yaml:"quiet_hour_start"`
	QuietHourEnd         int      `yaml:"quiet_hour_end"`

	STTFailureMessage string `yaml:"stt_failure_message"`
}

// HealthConfig configures probe thresholds and intervals.
type HealthConfig struct {
	CPUTempWarn  float64  `yaml:"cpu_temp_warn"`
	CPUTempCrit  float64  `yaml:"cpu_temp_crit"`
	MemWarn      float64  `yaml:"mem_warn"`
	MemCrit      float64  `yaml:"mem_crit"`
	DiskWarn     float64  `yaml:"disk_warn"`
	DiskCrit     float64  `yaml:"disk_crit"`
	HeartbeatWarn Duration `yaml:"heartbeat_warn"`
	HeartbeatCrit Duration `yaml:"heartbeat_crit"`
	NetProbeAddr string   `yaml:"net_probe_addr"`
	ServiceUnit  string   `yaml:"service_unit"`
	ArchiveMount string   `yaml:"archive_mount"`
	ThermalZone  string   `yaml:"thermal_zone"`
}

// SchedConfig configures the periodic task scheduler and calendar hook.
type SchedConfig struct {
	Tick             Duration `yaml:"tick"`
	CalendarICSURL   string   `yaml:"calendar_ics_url"`
	CalendarInterval Duration `yaml:"calendar_interval"`
	WorkKeywords     []string `yaml:"work_keywords"`
	WorkdayStartHour int      `yaml:"workday_start_hour"`
	WorkdayEndHour   int      `yaml:"workday_end_hour"`
}

// WatchdogConfig configures the self-repair watchdog.
type WatchdogConfig struct {
	Interval       Duration `yaml:"interval"`
	ServiceUnit    string   `yaml:"service_unit"`
	LogMaxAgeDays  int      `yaml:"log_max_age_days"`
	LogMaxSizeMB   int      `yaml:"log_max_size_mb"`
}

// StorageConfig configures tiered storage.
type StorageConfig struct {
	FastRoot         string   `yaml:"fast_root"`
	ArchiveRoot      string   `yaml:"archive_root"`
	ColdAfterDays    int      `yaml:"cold_after_days"`
	ExcludePatterns  []string `yaml:"exclude_patterns"`
	MonitorThreshold float64  `yaml:"monitor_threshold_percent"`
}

// NotifyConfig configures outbound notification channels.
type NotifyConfig struct {
	DiscordWebhookURL string   `yaml:"discord_webhook_url"`
	LINEChannelToken  string   `yaml:"line_channel_access_token"`
	LINEChannelSecret string   `yaml:"line_channel_secret"`
	LINETargetUserID  string   `yaml:"line_target_user_id"`
	SlackToken        string   `yaml:"slack_token"`
	SlackChannel      string   `yaml:"slack_channel"`
	ExecLogEnabled    bool     `yaml:"line_exec_log_enabled"`
	ExecLogWindow     Duration `yaml:"exec_log_window"`
	StartupCooldown   Duration `yaml:"startup_cooldown"`
}

// HTTPConfig configures the webhook/status server.
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// DisplayConfig configures the status display.
type DisplayConfig struct {
	Enabled     bool     `yaml:"enabled"`
	I2CDevice   string   `yaml:"i2c_device"`
	I2CAddress  uint8    `yaml:"i2c_address"`
	Tick        Duration `yaml:"tick"`
	PulseWindow Duration `yaml:"pulse_window"`
}

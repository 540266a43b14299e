package config

import "time"

// Operating mode names. The five steady modes are user-selectable; the
// transient states below them are set only by the watchdog or display.
const (
	ModeAutonomous  = "autonomous"
	ModeUserFirst   = "user_first"
	ModeMaintenance = "maintenance"
	ModePowerSave   = "power_save"
	ModeSafe        = "safe"

	ModeBoot      = "boot"
	ModeStorm     = "storm"
	ModeEmergency = "emergency"
	ModeShutdown  = "shutdown"
)

// Notify levels, from chattiest to quietest.
const (
	NotifyAll        = "all"
	NotifyCritical   = "critical"
	NotifyStatus     = "status"
	NotifyResponsive = "responsive"
	NotifyMinimal    = "minimal"
)

// SteadyModes lists the user-selectable operating modes.
var SteadyModes = []string{ModeAutonomous, ModeUserFirst, ModeMaintenance, ModePowerSave, ModeSafe}

// TransientModes lists forced states only the watchdog/display may set.
var TransientModes = []string{ModeBoot, ModeStorm, ModeEmergency, ModeShutdown}

// defaultModeTable is the built-in per-mode behavior table. A user table in
// shipos.yaml overrides entries by name.
func defaultModeTable() map[string]ModeSettings {
	return map[string]ModeSettings{
		ModeAutonomous: {
			IterationIntervalSec: 300,
			NotifyLevel:          NotifyAll,
			AutonomousTasks:      true,
			PriorityBias:         "system",
		},
		ModeUserFirst: {
			IterationIntervalSec: 60,
			NotifyLevel:          NotifyResponsive,
			AutonomousTasks:      false,
			PriorityBias:         "user",
		},
		ModeMaintenance: {
			IterationIntervalSec: 600,
			NotifyLevel:          NotifyCritical,
			AutonomousTasks:      true,
			PriorityBias:         "maintenance",
		},
		ModePowerSave: {
			IterationIntervalSec: 1800,
			NotifyLevel:          NotifyMinimal,
			AutonomousTasks:      false,
			PriorityBias:         "none",
		},
		ModeSafe: {
			IterationIntervalSec: 0, // planner loop halted
			NotifyLevel:          NotifyCritical,
			AutonomousTasks:      false,
			PriorityBias:         "safety",
		},
	}
}

// defaultPrices is the built-in per-1K-token price table (yen).
func defaultPrices() map[string]ModelPrice {
	return map[string]ModelPrice{
		"gpt-4o":        {InputPer1K: 0.375, OutputPer1K: 1.5},
		"gpt-4o-mini":   {InputPer1K: 0.0225, OutputPer1K: 0.09},
		"gpt-4.1-mini":  {InputPer1K: 0.06, OutputPer1K: 0.24},
		"whisper-1":     {InputPer1K: 0.9, OutputPer1K: 0},
		"tts-1":         {InputPer1K: 2.25, OutputPer1K: 0},
	}
}

// applyDefaults fills zero-valued fields in-place after YAML parsing.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "/home/pi/shipos"
	}
	if cfg.RunDir == "" {
		cfg.RunDir = "/tmp"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = cfg.DataDir + "/logs"
	}

	if cfg.Modes.Initial == "" {
		cfg.Modes.Initial = ModeAutonomous
	}
	table := defaultModeTable()
	for name, settings := range cfg.Modes.Table {
		table[name] = settings
	}
	cfg.Modes.Table = table

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.QuickResponseModel == "" {
		cfg.LLM.QuickResponseModel = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.QuickTemperature == 0 {
		cfg.LLM.QuickTemperature = 0.8
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.QuickMaxTokens == 0 {
		cfg.LLM.QuickMaxTokens = 400
	}
	if cfg.LLM.RequestTimeout.Duration == 0 {
		cfg.LLM.RequestTimeout.Duration = 60 * time.Second
	}
	if len(cfg.LLM.CompletionMarkers) == 0 {
		cfg.LLM.CompletionMarkers = []string{"完了", "達成", "終了", "完成", "done", "finished"}
	}

	if cfg.Cost.Normal.Warning == 0 {
		cfg.Cost.Normal = CostThresholds{Warning: 200, Stop: 300}
	}
	if cfg.Cost.SpecialDay.Warning == 0 {
		cfg.Cost.SpecialDay = CostThresholds{Warning: 500, Alert: 900, Stop: 1000}
	}
	prices := defaultPrices()
	for model, price := range cfg.Cost.Prices {
		prices[model] = price
	}
	cfg.Cost.Prices = prices
	if cfg.Cost.ConfirmationTimeout.Duration == 0 {
		cfg.Cost.ConfirmationTimeout.Duration = 10 * time.Minute
	}

	if len(cfg.Exec.AllowedPrograms) == 0 {
		cfg.Exec.AllowedPrograms = []string{
			"ls", "cat", "head", "tail", "grep", "find", "wc", "du", "df",
			"cp", "mv", "rm", "mkdir", "touch", "chmod", "chown",
			"git", "python3", "pip3", "apt-get", "systemctl", "journalctl",
			"free", "uptime", "date", "hostname", "echo",
		}
	}
	if len(cfg.Exec.AllowedRoots) == 0 {
		cfg.Exec.AllowedRoots = []string{cfg.DataDir, "/tmp"}
	}
	if len(cfg.Exec.ServiceVerbs) == 0 {
		cfg.Exec.ServiceVerbs = []string{"status", "start", "stop", "restart", "is-active", "is-enabled", "daemon-reload"}
	}
	if cfg.Exec.Timeout.Duration == 0 {
		cfg.Exec.Timeout.Duration = 30 * time.Second
	}
	if cfg.Exec.OutputLimit == 0 {
		cfg.Exec.OutputLimit = 16 * 1024
	}

	applyVoiceDefaults(&cfg.Voice)
	applyHealthDefaults(&cfg.Health)

	if cfg.Sched.Tick.Duration == 0 {
		cfg.Sched.Tick.Duration = time.Minute
	}
	if cfg.Sched.CalendarInterval.Duration == 0 {
		cfg.Sched.CalendarInterval.Duration = 5 * time.Minute
	}
	if len(cfg.Sched.WorkKeywords) == 0 {
		cfg.Sched.WorkKeywords = []string{"出勤", "勤務", "仕事", "work", "shift"}
	}
	if cfg.Sched.WorkdayStartHour == 0 {
		cfg.Sched.WorkdayStartHour = 9
	}
	if cfg.Sched.WorkdayEndHour == 0 {
		cfg.Sched.WorkdayEndHour = 18
	}

	if cfg.Watchdog.Interval.Duration == 0 {
		cfg.Watchdog.Interval.Duration = 10 * time.Minute
	}
	if cfg.Watchdog.ServiceUnit == "" {
		cfg.Watchdog.ServiceUnit = "shipos.service"
	}
	if cfg.Watchdog.LogMaxAgeDays == 0 {
		cfg.Watchdog.LogMaxAgeDays = 7
	}
	if cfg.Watchdog.LogMaxSizeMB == 0 {
		cfg.Watchdog.LogMaxSizeMB = 50
	}

	if cfg.Storage.FastRoot == "" {
		cfg.Storage.FastRoot = cfg.DataDir
	}
	if cfg.Storage.ArchiveRoot == "" {
		cfg.Storage.ArchiveRoot = "/mnt/hdd/archive"
	}
	if cfg.Storage.ColdAfterDays == 0 {
		cfg.Storage.ColdAfterDays = 30
	}
	if len(cfg.Storage.ExcludePatterns) == 0 {
		cfg.Storage.ExcludePatterns = []string{"*.json", "*.jsonl", "*.db", "*.log", ".git/*"}
	}
	if cfg.Storage.MonitorThreshold == 0 {
		cfg.Storage.MonitorThreshold = 80
	}

	if cfg.Notify.ExecLogWindow.Duration == 0 {
		cfg.Notify.ExecLogWindow.Duration = 30 * time.Minute
	}
	if cfg.Notify.StartupCooldown.Duration == 0 {
		cfg.Notify.StartupCooldown.Duration = 5 * time.Minute
	}

	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}

	if cfg.Display.I2CDevice == "" {
		cfg.Display.I2CDevice = "/dev/i2c-1"
	}
	if cfg.Display.I2CAddress == 0 {
		cfg.Display.I2CAddress = 0x3C
	}
	if cfg.Display.Tick.Duration == 0 {
		cfg.Display.Tick.Duration = 150 * time.Millisecond
	}
	if cfg.Display.PulseWindow.Duration == 0 {
		cfg.Display.PulseWindow.Duration = 5 * time.Second
	}
}

func applyVoiceDefaults(v *VoiceConfig) {
	if v.InputDevice == "" {
		v.InputDevice = "/dev/input/event0"
	}
	if v.AudioSink == "" {
		v.AudioSink = "default"
	}
	if v.STTEngine == "" {
		v.STTEngine = "remote"
	}
	if v.TTSEngine == "" {
		v.TTSEngine = "hybrid"
	}
	if v.TTSVoice == "" {
		v.TTSVoice = "nova"
	}
	if v.WhisperBin == "" {
		v.WhisperBin = "whisper-cpp"
	}
	if v.PiperBin == "" {
		v.PiperBin = "piper"
	}
	if v.MaxVolume == 0 {
		v.MaxVolume = 85
	}
	if v.ConversationVolume == 0 {
		v.ConversationVolume = 70
	}
	if v.NotificationVolume == 0 {
		v.NotificationVolume = 60
	}
	if v.MonologueVolume == 0 {
		v.MonologueVolume = 45
	}
	if v.MonologueNightVol == 0 {
		v.MonologueNightVol = 25
	}
	if v.VolumeStep == 0 {
		v.VolumeStep = 5
	}
	if v.MonologueMinInterval.Duration == 0 {
		v.MonologueMinInterval.Duration = 7 * time.Minute
	}
	if v.MonologueMaxInterval.Duration == 0 {
		v.MonologueMaxInterval.Duration = 25 * time.Minute
	}
	if v.QuietHourStart == 0 {
		v.QuietHourStart = 22
	}
	if v.QuietHourEnd == 0 {
		v.QuietHourEnd = 6
	}
	if v.STTFailureMessage == "" {
		v.STTFailureMessage = "ごめん、聞き取れなかった"
	}
}

func applyHealthDefaults(h *HealthConfig) {
	if h.CPUTempWarn == 0 {
		h.CPUTempWarn = 70
	}
	if h.CPUTempCrit == 0 {
		h.CPUTempCrit = 80
	}
	if h.MemWarn == 0 {
		h.MemWarn = 80
	}
	if h.MemCrit == 0 {
		h.MemCrit = 90
	}
	if h.DiskWarn == 0 {
		h.DiskWarn = 80
	}
	if h.DiskCrit == 0 {
		h.DiskCrit = 90
	}
	if h.HeartbeatWarn.Duration == 0 {
		h.HeartbeatWarn.Duration = 2 * time.Minute
	}
	if h.HeartbeatCrit.Duration == 0 {
		h.HeartbeatCrit.Duration = 5 * time.Minute
	}
	if h.NetProbeAddr == "" {
		h.NetProbeAddr = "1.1.1.1:443"
	}
	if h.ServiceUnit == "" {
		h.ServiceUnit = "shipos.service"
	}
	if h.ArchiveMount == "" {
		h.ArchiveMount = "/mnt/hdd"
	}
	if h.ThermalZone == "" {
		h.ThermalZone = "/sys/class/thermal/thermal_zone0/temp"
	}
}

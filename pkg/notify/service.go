// Package notify delivers outbound messages: Discord webhook for reliable
// pushes, LINE for the interactive channel, Slack as an optional mirror.
// Delivery is level-gated by the current mode and always fail-open.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

// Notification kinds.
const (
	KindStartup       = "startup"
	KindShutdown      = "shutdown"
	KindExecutionLog  = "execution_log"
	KindError         = "error"
	KindMemorySummary = "memory_summary"
	KindCostWarning   = "cost_warning"
	KindCostAlert     = "cost_alert"
	KindCostStop      = "cost_stop"
	KindHealth        = "health"
	KindHealthCrit    = "health_critical"
	KindStatus        = "status"
	KindResponse      = "response"
)

// criticalKinds always pass every filter except none.
var criticalKinds = map[string]bool{
	KindCostStop:   true,
	KindCostAlert:  true,
	KindError:      true,
	KindHealthCrit: true,
}

// allowed reports whether kind passes the mode's notify level.
func allowed(level, kind string) bool {
	switch level {
	case config.NotifyAll:
		return true
	case config.NotifyCritical:
		return criticalKinds[kind]
	case config.NotifyStatus:
		return criticalKinds[kind] || kind == KindStatus || kind == KindStartup || kind == KindShutdown
	case config.NotifyResponsive:
		return criticalKinds[kind] || kind == KindResponse
	default:
		// minimal and unknown levels fall back to the critical set; cost
		// alerts and errors must reach the user even in power save.
		return criticalKinds[kind]
	}
}

// startupFlag dedupes startup pushes across quick restarts.
type startupFlag struct {
	LastStartup string `json:"last_startup"`
}

// Service fans notifications out to the configured channels.
// All methods are safe on a Service with no channels configured.
type Service struct {
	cfg     *config.NotifyConfig
	st      *store.Store
	line    *LINEClient
	discord *DiscordClient
	slack   *SlackClient
	levelFn func() string
	logger  *slog.Logger

	mu           sync.Mutex
	execLogUntil time.Time
}

// NewService builds the notifier. levelFn supplies the current mode's
// notify level at send time; channels missing credentials stay nil.
func NewService(cfg *config.NotifyConfig, st *store.Store, levelFn func() string) *Service {
	s := &Service{
		cfg:     cfg,
		st:      st,
		levelFn: levelFn,
		logger:  slog.Default().With("component", "notify"),
	}
	if cfg.LINEChannelToken != "" && cfg.LINETargetUserID != "" {
		s.line = NewLINEClient(cfg.LINEChannelToken, cfg.LINETargetUserID)
	}
	if cfg.DiscordWebhookURL != "" {
		s.discord = NewDiscordClient(cfg.DiscordWebhookURL)
	}
	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		s.slack = NewSlackClient(cfg.SlackToken, cfg.SlackChannel)
	}
	if cfg.ExecLogEnabled {
		s.execLogUntil = time.Now().Add(24 * 365 * time.Hour)
	}
	return s
}

// LINE exposes the interactive channel client for webhook replies; nil
// when the channel is not configured.
func (s *Service) LINE() *LINEClient {
	if s == nil {
		return nil
	}
	return s.line
}

// Event delivers a message of the given kind through every channel the
// current notify level admits. Failures are logged, never returned.
func (s *Service) Event(kind, message string) {
	if s == nil || message == "" {
		return
	}
	level := config.NotifyAll
	if s.levelFn != nil {
		level = s.levelFn()
	}
	if !allowed(level, kind) {
		s.logger.Debug("Notification filtered", "kind", kind, "level", level)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.discord != nil {
		if err := s.discord.Post(ctx, message); err != nil {
			s.logger.Error("Discord push failed", "kind", kind, "error", err)
		}
	}
	if s.line != nil {
		if err := s.line.Push(ctx, message); err != nil {
			s.logger.Error("LINE push failed", "kind", kind, "error", err)
		} else {
			s.st.PulseLine("tx")
		}
	}
	if s.slack != nil {
		if err := s.slack.Post(ctx, message); err != nil {
			s.logger.Error("Slack push failed", "kind", kind, "error", err)
		}
	}
	s.logger.Info("Notification sent", "kind", kind, "level", level)
}

// ExecLog mirrors a per-iteration execution line to the interactive
// channel while the exec-log window is open.
func (s *Service) ExecLog(message string) {
	if s == nil || message == "" {
		return
	}
	s.mu.Lock()
	open := time.Now().Before(s.execLogUntil)
	s.mu.Unlock()
	if !open || s.line == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.line.Push(ctx, message); err != nil {
		s.logger.Error("Exec-log push failed", "error", err)
	} else {
		s.st.PulseLine("tx")
	}
}

// EnableExecLog opens the exec-log window (chat command "log on").
func (s *Service) EnableExecLog() {
	s.mu.Lock()
	s.execLogUntil = time.Now().Add(s.cfg.ExecLogWindow.Duration)
	s.mu.Unlock()
	s.logger.Info("Exec log enabled", "window", s.cfg.ExecLogWindow.Duration)
}

// DisableExecLog closes the window (chat command "log off").
func (s *Service) DisableExecLog() {
	s.mu.Lock()
	s.execLogUntil = time.Time{}
	s.mu.Unlock()
	s.logger.Info("Exec log disabled")
}

// ExecLogOpen reports whether the exec-log window is currently open.
func (s *Service) ExecLogOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.execLogUntil)
}

// NotifyStartup sends the startup push unless one was already sent within
// the cooldown (watchdog restarts would otherwise spam the channel).
func (s *Service) NotifyStartup(message string) {
	var flag startupFlag
	if store.ReadSnapshot(s.st.StartupFlagPath(), &flag) {
		if last, err := time.Parse(time.RFC3339, flag.LastStartup); err == nil {
			if time.Since(last) < s.cfg.StartupCooldown.Duration {
				s.logger.Info("Startup push suppressed by cooldown", "last", flag.LastStartup)
				return
			}
		}
	}
	s.Event(KindStartup, message)
	flag.LastStartup = time.Now().Format(time.RFC3339)
	if err := store.WriteSnapshot(s.st.StartupFlagPath(), flag); err != nil {
		s.logger.Error("Failed to write startup flag", "error", err)
	}
}

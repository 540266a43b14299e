package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/narrator"
)

// handleCommand matches the static chat vocabulary. Returns the reply
// text and whether the message was a command. Unmatched text goes to the
// inbox instead.
func (s *Server) handleCommand(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "stop":
		res := s.mgr.Switch(config.ModeSafe, "chat stop", modes.SourceUser)
		if !res.Success {
			return "⚓ すでに停船中。", true
		}
		return "⚓ 自律航行を停止した。再開は start。", true

	case "start":
		res := s.mgr.Switch(config.ModeAutonomous, "chat start", modes.SourceUser)
		if !res.Success {
			return "⛵ すでに航行中。", true
		}
		return "⛵ 出航！自律航行を再開した。", true

	case "status":
		return s.statusReply(), true

	case "health":
		return s.healthSummary(), true

	case "log on":
		s.notifier.EnableExecLog()
		return "📋 実行ログ通知ON（30分間）。", true

	case "log off":
		s.notifier.DisableExecLog()
		return "📋 実行ログ通知OFF。", true

	case "logbook":
		return s.logbookReply(), true

	case "today":
		return s.st.DaySummary(time.Now()), true

	case "mute":
		s.st.WriteAudioCommand("monologue_mute", nil)
		return "🔇 独り言を止める。", true

	case "unmute":
		s.st.WriteAudioCommand("monologue_unmute", nil)
		return "🔊 独り言を再開する。", true

	case "read status":
		s.st.WriteAudioCommand("status_read", nil)
		return "🗣 船内状況を読み上げる。", true
	}

	if goal, ok := strings.CutPrefix(trimmed, "speak "); ok {
		s.st.WriteAudioCommand("speak", map[string]string{"text": goal})
		return "🗣 読み上げる。", true
	}
	if voice, ok := strings.CutPrefix(lower, "voice "); ok {
		s.st.WriteAudioCommand("change_voice", map[string]string{"voice": strings.TrimSpace(voice)})
		return "🎙 声を切り替える: " + strings.TrimSpace(voice), true
	}
	if name, ok := strings.CutPrefix(lower, "mode "); ok {
		return s.modeReply(strings.TrimSpace(name)), true
	}
	if id, ok := strings.CutPrefix(lower, "approve:"); ok {
		return s.confirmReply(strings.TrimSpace(id), true), true
	}
	if id, ok := strings.CutPrefix(lower, "deny:"); ok {
		return s.confirmReply(strings.TrimSpace(id), false), true
	}

	return "", false
}

func (s *Server) statusReply() string {
	snap := s.mgr.Current()
	_, glyph := narrator.SailState(snap.Mode)
	return fmt.Sprintf("%s %s\nDEST: %s\nAI: %s\n%s\n%s",
		glyph, snap.Mode,
		s.goals.CurrentGoal(),
		s.st.ReadAIState().State,
		s.healthSummary(),
		s.guard.StatusLine())
}

func (s *Server) logbookReply() string {
	entries := s.st.DayEntries(time.Now())
	if len(entries) == 0 {
		return "航海日誌はまだ空だ。"
	}
	if len(entries) > 10 {
		entries = entries[len(entries)-10:]
	}
	var b strings.Builder
	for _, e := range entries {
		t, err := time.Parse(time.RFC3339, e.Timestamp)
		clock := "--:--"
		if err == nil {
			clock = t.Format("15:04")
		}
		fmt.Fprintf(&b, "[%s %s] %s\n", clock, e.Category, e.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Server) modeReply(name string) string {
	res := s.mgr.Switch(name, "chat request", modes.SourceUser)
	if !res.Success {
		return "⚠️ 切替できない: " + res.Reason
	}
	return narrator.ModeChange(res.Old, res.New, "chat")
}

func (s *Server) confirmReply(id string, approved bool) string {
	if err := s.guard.Resolve(id, approved, "line"); err != nil {
		return "⚠️ 確認IDが見つからない: " + id
	}
	if approved {
		return "✅ 承認した: " + id
	}
	return "🚫 却下した: " + id
}

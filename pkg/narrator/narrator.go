// Package narrator phrases system events in the ship's voice. Pure
// formatting: the notifier and monologue engine pick from here.
package narrator

import (
	"fmt"

	"github.com/bcnofne/shipos/pkg/config"
)

// Sailing states shown next to the mode on the display and in messages.
const (
	SailUnderway = "SAIL"   // autonomous
	SailInPort   = "PORT"   // user_first
	SailDocked   = "DOCK"   // maintenance
	SailAnchored = "ANCHOR" // power_save
	SailDistress = "SOS"    // safe / emergency / storm
)

// SailState maps an operating mode to its sailing state and glyph.
func SailState(mode string) (state, glyph string) {
	switch mode {
	case config.ModeAutonomous:
		return SailUnderway, "⛵"
	case config.ModeUserFirst:
		return SailInPort, "⚓"
	case config.ModeMaintenance:
		return SailDocked, "🔧"
	case config.ModePowerSave:
		return SailAnchored, "🌙"
	case config.ModeStorm:
		return SailDistress, "🌊"
	case config.ModeEmergency, config.ModeSafe:
		return SailDistress, "🆘"
	case config.ModeBoot:
		return SailInPort, "🌅"
	case config.ModeShutdown:
		return SailInPort, "🌇"
	default:
		return SailInPort, "⚓"
	}
}

// Startup announces the ship leaving port.
func Startup(version string) string {
	return fmt.Sprintf("⛵ 出航！shipOS %s 起動したよ。今日もよろしく、マスター。", version)
}

// Shutdown announces the return to port.
func Shutdown() string {
	return "🌇 帰港する。shipOS 停止。また明日ね、マスター。"
}

// ModeChange narrates a mode switch.
func ModeChange(from, to, reason string) string {
	_, glyph := SailState(to)
	msg := fmt.Sprintf("%s 針路変更: %s → %s", glyph, from, to)
	if reason != "" {
		msg += fmt.Sprintf("（%s）", reason)
	}
	return msg
}

// HealthAlert narrates a WARN/CRITICAL health rollup.
func HealthAlert(level, detail string) string {
	if level == "CRITICAL" {
		return fmt.Sprintf("🆘 緊急事態発生！ %s", detail)
	}
	return fmt.Sprintf("🌊 荒天注意。 %s", detail)
}

// CostAlert narrates a budget threshold crossing.
func CostAlert(level string, today, limit float64) string {
	switch level {
	case "stop":
		return fmt.Sprintf("🆘 燃料切れ。本日 ¥%.0f が上限 ¥%.0f を超えた。自律航行を停止する。", today, limit)
	case "alert":
		return fmt.Sprintf("🌊 燃料残りわずか。本日 ¥%.0f / 上限 ¥%.0f。", today, limit)
	default:
		return fmt.Sprintf("⚠️ 燃料計に注意。本日 ¥%.0f / 上限 ¥%.0f。", today, limit)
	}
}

// GoalChange narrates a new destination.
func GoalChange(goal, source string) string {
	if source == "user" {
		return fmt.Sprintf("⚓ 了解、新しい目的地へ。「%s」", goal)
	}
	return fmt.Sprintf("⛵ 次の針路:「%s」", goal)
}

// Monologue template pools, selected by system-state predicates. The
// arbiter avoids repeating the last-spoken line.
var (
	MonologueHotCPU = []string{
		"機関室がちょっと熱いな",
		"エンジンが熱を持ってる、様子を見よう",
	}
	MonologueHighDisk = []string{
		"船倉がだいぶ埋まってきた",
		"そろそろ荷物を整理しないとな",
	}
	MonologueNetDown = []string{
		"無線が繋がらない、沖に出すぎたか",
		"電波が途切れてる、静かな海だ",
	}
	MonologueNight = []string{
		"静かな夜だ",
		"星がよく見える頃かな",
	}
	MonologueIdle = []string{
		"順調な航海だ",
		"風が気持ちいいな",
		"今日は何をしようか",
		"マスターは元気かな",
	}
)

package voice

import (
	"context"
	"os"
	"time"

	"github.com/bcnofne/shipos/pkg/store"
)

// commandPollInterval is how often the run-dir command file is checked.
const commandPollInterval = 2 * time.Second

// Monologue exposes the monologue engine for chat-driven mute control.
func (a *Arbiter) Monologue() *Monologue { return a.monologue }

// pollCommands watches the audio-command snapshot other processes (the
// chat webhook, mainly) drop for the arbiter. Commands are deduplicated
// by timestamp and the file is removed after dispatch.
func (a *Arbiter) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var cmd store.AudioCommand
		if !store.ReadSnapshot(a.st.AudioCmdPath(), &cmd) {
			continue
		}
		if cmd.Timestamp == "" || cmd.Timestamp == a.lastSeenTimestamp() {
			continue
		}
		a.markSeen(cmd.Timestamp)
		if err := os.Remove(a.st.AudioCmdPath()); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("Failed to remove audio command file", "error", err)
		}
		a.dispatchCommand(cmd)
	}
}

func (a *Arbiter) lastSeenTimestamp() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSeen
}

func (a *Arbiter) markSeen(ts string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSeen = ts
}

func (a *Arbiter) dispatchCommand(cmd store.AudioCommand) {
	a.logger.Info("Audio command", "action", cmd.Action)
	switch cmd.Action {
	case "speak":
		a.Speak(cmd.Params["text"], PriorityNotification)
	case "monologue_mute":
		a.monologue.Mute()
	case "monologue_unmute":
		a.monologue.Unmute()
	case "status_read":
		a.handleStatusRead()
	case "change_voice":
		a.changeVoice(cmd.Params["voice"])
	default:
		a.logger.Warn("Unknown audio command", "action", cmd.Action)
	}
}

// changeVoice rebuilds the TTS engine with a new voice name. Only the
// remote and hybrid engines carry a voice; local piper ignores it.
func (a *Arbiter) changeVoice(voice string) {
	if voice == "" {
		return
	}
	a.cfg.TTSVoice = voice
	tts, err := NewTTS(a.cfg)
	if err != nil {
		a.logger.Error("Voice change failed", "voice", voice, "error", err)
		return
	}
	a.mu.Lock()
	a.tts = tts
	a.mu.Unlock()
	a.logger.Info("Voice changed", "voice", voice)
}

// Package voice owns the single audio output: a priority speech queue, a
// push-to-talk conversation loop, and the idle monologue. One utterance
// plays at a time and playback is never preempted.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

// Arbiter states published to the audio-state snapshot.
const (
	StateIdle      = "idle"
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSpeaking  = "speaking"
)

// Hooks are the callbacks the arbiter needs from the rest of the system.
// Any of them may be nil, the matching feature then degrades to a spoken
// refusal.
type Hooks struct {
	// Respond answers a transcribed utterance.
	Respond func(ctx context.Context, text string) (string, error)
	// StatusText renders the health summary for the status-read key.
	StatusText func() string
	// Logbook renders today's ships-log digest.
	Logbook func() string
	// EmergencyStop halts the agent service after the warning is spoken.
	EmergencyStop func(ctx context.Context)
}

// Arbiter is the audio front half: queue in, speaker goroutine out.
type Arbiter struct {
	cfg    *config.VoiceConfig
	st     *store.Store
	stt    STTEngine
	tts    TTSEngine
	hooks  Hooks
	logger *slog.Logger

	queue     *speechQueue
	monologue *Monologue

	// record starts a microphone capture; swapped out in tests.
	record func(ctx context.Context) (*capture, error)
	// biasFn supplies the current mode's priority bias for non-talk speech.
	biasFn func() string

	mu        sync.Mutex
	state     string
	lastSeen  string // last dispatched audio-command timestamp
	recording *capture

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the arbiter and its engines from config.
func New(cfg *config.VoiceConfig, st *store.Store, hooks Hooks) (*Arbiter, error) {
	stt, err := NewSTT(cfg)
	if err != nil {
		return nil, fmt.Errorf("building stt engine: %w", err)
	}
	tts, err := NewTTS(cfg)
	if err != nil {
		return nil, fmt.Errorf("building tts engine: %w", err)
	}
	a := &Arbiter{
		cfg:    cfg,
		st:     st,
		stt:    stt,
		tts:    tts,
		hooks:  hooks,
		logger: slog.Default().With("component", "voice"),
		queue:  newSpeechQueue(),
		state:  StateIdle,
	}
	a.record = startCapture
	a.monologue = newMonologue(cfg, a)
	return a, nil
}

// SetPriorityBias wires the mode manager's priority-bias hint. Talk and
// emergency speech always pass; the hint only trims the chattier tiers.
func (a *Arbiter) SetPriorityBias(fn func() string) {
	a.biasFn = fn
}

// Start launches the speaker, the key listener, the command poller, and
// the monologue timer.
func (a *Arbiter) Start(ctx context.Context) {
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	a.setState(StateIdle, "")

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); a.speaker(ctx) }()
	go func() { defer wg.Done(); a.listenKeys(ctx) }()
	go func() { defer wg.Done(); a.pollCommands(ctx) }()
	go func() { defer wg.Done(); a.monologue.run(ctx) }()
	go func() { wg.Wait(); close(a.done) }()

	a.logger.Info("Voice arbiter started",
		"stt", a.cfg.STTEngine, "tts", a.cfg.TTSEngine, "input", a.cfg.InputDevice)
}

// Stop drains nothing: pending speech is dropped, current playback is
// interrupted by process exit.
func (a *Arbiter) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	a.queue.Close()
	<-a.done
	a.setState(StateIdle, "stopped")
	a.logger.Info("Voice arbiter stopped")
}

// Speak enqueues text at the given priority with the default volume for
// that priority.
func (a *Arbiter) Speak(text string, priority int) {
	if strings.TrimSpace(text) == "" || !a.biasAllows(priority) {
		return
	}
	a.queue.Push(Utterance{Text: text, Priority: priority, Volume: a.volumeFor(priority)})
}

// biasAllows applies the mode's priority bias to non-talk speech: the
// monologue only runs under a system or maintenance bias, and a "none"
// bias (power save) silences notifications too.
func (a *Arbiter) biasAllows(priority int) bool {
	if a.biasFn == nil {
		return true
	}
	switch priority {
	case PriorityMonologue:
		bias := a.biasFn()
		return bias == "system" || bias == "maintenance"
	case PriorityNotification:
		return a.biasFn() != "none"
	default:
		return true
	}
}

func (a *Arbiter) volumeFor(priority int) int {
	switch priority {
	case PriorityTalk, PriorityEmergency:
		return a.cfg.ConversationVolume
	case PriorityNotification:
		return a.cfg.NotificationVolume
	default:
		if a.monologue.nightNow(time.Now()) {
			return a.cfg.MonologueNightVol
		}
		return a.cfg.MonologueVolume
	}
}

func (a *Arbiter) setState(state, detail string) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
	if err := store.WriteSnapshot(a.st.AudioStatePath(), map[string]string{
		"state":     state,
		"detail":    detail,
		"timestamp": time.Now().Format(time.RFC3339),
	}); err != nil {
		a.logger.Error("Failed to write audio state", "error", err)
	}
}

// ttsEngine reads the engine under the lock; chat can swap it at runtime.
func (a *Arbiter) ttsEngine() TTSEngine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tts
}

// State returns the current arbiter state.
func (a *Arbiter) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// speaker is the single playback goroutine.
func (a *Arbiter) speaker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.queue.wake:
		}
		for {
			u, ok := a.queue.Pop()
			if !ok {
				break
			}
			a.play(ctx, u)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (a *Arbiter) play(ctx context.Context, u Utterance) {
	a.setState(StateSpeaking, truncateRunes(u.Text, 40))
	defer a.setState(StateIdle, "")

	wav, cached, err := a.ttsEngine().Synthesize(ctx, u.Text)
	if err != nil {
		a.logger.Error("Synthesis failed", "error", err)
		return
	}
	if !cached {
		defer os.Remove(wav)
	}

	a.setVolume(ctx, u.Volume)
	cmd := exec.CommandContext(ctx, "aplay", "-q", wav)
	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		a.logger.Error("Playback failed", "error", err)
	}
}

// setVolume caps at MaxVolume and applies via wpctl. Failures are logged,
// playback proceeds at whatever the sink is set to.
func (a *Arbiter) setVolume(ctx context.Context, percent int) {
	if percent <= 0 {
		return
	}
	if percent > a.cfg.MaxVolume {
		percent = a.cfg.MaxVolume
	}
	sink := a.cfg.AudioSink
	if sink == "" {
		sink = "@DEFAULT_AUDIO_SINK@"
	}
	cmd := exec.CommandContext(ctx, "wpctl", "set-volume", sink, fmt.Sprintf("%d%%", percent))
	if err := cmd.Run(); err != nil {
		a.logger.Warn("Volume set failed", "percent", percent, "error", err)
	}
}

// nudgeVolume applies a relative step for the hardware volume keys.
func (a *Arbiter) nudgeVolume(ctx context.Context, up bool) {
	sink := a.cfg.AudioSink
	if sink == "" {
		sink = "@DEFAULT_AUDIO_SINK@"
	}
	arg := fmt.Sprintf("%d%%-", a.cfg.VolumeStep)
	if up {
		// The cap keeps the hardware keys from exceeding MaxVolume too.
		arg = fmt.Sprintf("%d%%+", a.cfg.VolumeStep)
	}
	args := []string{"set-volume", sink, arg}
	if up {
		args = append(args, "--limit", fmt.Sprintf("%.2f", float64(a.cfg.MaxVolume)/100))
	}
	if err := exec.CommandContext(ctx, "wpctl", args...).Run(); err != nil {
		a.logger.Warn("Volume nudge failed", "error", err)
	}
}

// capture is one in-flight push-to-talk recording.
type capture struct {
	cmd  *exec.Cmd
	path string
}

// startCapture launches arecord into a temp wav. The process records
// until stop interrupts it on key release; the -d cap backstops a missed
// release event.
func startCapture(ctx context.Context) (*capture, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("shipos_rec_%d.wav", time.Now().UnixNano()))
	cmd := exec.CommandContext(ctx, "arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-d", "30", path)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("arecord failed to start: %w", err)
	}
	return &capture{cmd: cmd, path: path}, nil
}

// stop interrupts arecord and waits for it to flush the wav header.
func (c *capture) stop() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	_ = c.cmd.Process.Signal(os.Interrupt)
	_ = c.cmd.Wait()
}

// HandleTalkPress starts recording on talk-key press. Refused while
// speech is playing so the microphone does not pick up our own voice,
// and while a recording is already live (key autorepeat, double press).
func (a *Arbiter) HandleTalkPress(ctx context.Context) {
	if a.State() == StateSpeaking {
		a.logger.Info("Talk key ignored while speaking")
		return
	}

	a.mu.Lock()
	if a.recording != nil {
		a.mu.Unlock()
		return
	}
	c, err := a.record(ctx)
	if err != nil {
		a.mu.Unlock()
		a.logger.Error("Recording failed to start", "error", err)
		return
	}
	a.recording = c
	a.mu.Unlock()

	a.setState(StateListening, "")
}

// HandleTalkRelease stops the live recording on talk-key release and runs
// the transcribe-respond turn. A release with no live recording (the press
// was refused, or arrived before startup) is a no-op.
func (a *Arbiter) HandleTalkRelease(ctx context.Context) {
	a.mu.Lock()
	c := a.recording
	a.recording = nil
	a.mu.Unlock()
	if c == nil {
		return
	}
	c.stop()
	defer os.Remove(c.path)

	a.setState(StateThinking, "")
	a.respond(ctx, c.path)
}

// respond transcribes the captured wav and speaks the answer.
func (a *Arbiter) respond(ctx context.Context, wav string) {
	text, err := a.stt.Transcribe(ctx, wav)
	if err != nil || strings.TrimSpace(text) == "" {
		a.logger.Warn("Transcription produced nothing", "error", err)
		msg := a.cfg.STTFailureMessage
		if msg == "" {
			msg = "ごめん、聞き取れなかった。もう一回言って？"
		}
		a.Speak(msg, PriorityTalk)
		return
	}
	a.st.TouchUser()
	a.logger.Info("Heard", "text", text)

	if a.hooks.Respond == nil {
		a.Speak("応答機能が準備できていない。", PriorityTalk)
		return
	}
	reply, err := a.hooks.Respond(ctx, text)
	if err != nil {
		a.logger.Error("Response generation failed", "error", err)
		a.Speak("うまく考えがまとまらなかった。少し待って。", PriorityTalk)
		return
	}
	a.Speak(reply, PriorityTalk)
}

// handleStatusRead speaks the health summary.
func (a *Arbiter) handleStatusRead() {
	if a.hooks.StatusText == nil {
		return
	}
	a.Speak(a.hooks.StatusText(), PriorityNotification)
}

// handleLogbook speaks today's ships-log digest.
func (a *Arbiter) handleLogbook() {
	if a.hooks.Logbook == nil {
		return
	}
	text := a.hooks.Logbook()
	if text == "" {
		text = "今日の航海日誌はまだ空だ。"
	}
	a.Speak(text, PriorityNotification)
}

// handleEmergencyStop announces the halt, gives the announcement time to
// play, then stops the agent service.
func (a *Arbiter) handleEmergencyStop(ctx context.Context) {
	a.logger.Warn("Emergency stop requested")
	a.Speak("緊急停止する。", PriorityEmergency)
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return
	}
	if a.hooks.EmergencyStop != nil {
		a.hooks.EmergencyStop(ctx)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

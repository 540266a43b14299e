package voice

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
)

// STTEngine turns a recorded WAV into text.
type STTEngine interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// TTSEngine turns text into a playable WAV file. The caller removes the
// returned file after playback unless Cached is true.
type TTSEngine interface {
	Synthesize(ctx context.Context, text string) (path string, cached bool, err error)
}

// NewSTT builds the configured STT engine.
func NewSTT(cfg *config.VoiceConfig) (STTEngine, error) {
	switch cfg.STTEngine {
	case "local":
		return &whisperLocal{bin: cfg.WhisperBin, model: cfg.WhisperModel}, nil
	case "remote":
		return newWhisperRemote()
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.STTEngine)
	}
}

// NewTTS builds the configured TTS engine.
func NewTTS(cfg *config.VoiceConfig) (TTSEngine, error) {
	local := &piperTTS{bin: cfg.PiperBin, model: cfg.PiperModel}
	switch cfg.TTSEngine {
	case "local":
		return local, nil
	case "remote":
		return newRemoteTTS(cfg.TTSVoice)
	case "hybrid":
		remote, err := newRemoteTTS(cfg.TTSVoice)
		if err != nil {
			return nil, err
		}
		return &hybridTTS{
			cacheDir: cfg.CacheDir,
			voice:    cfg.TTSVoice,
			remote:   remote,
			local:    local,
			logger:   slog.Default().With("component", "voice"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.TTSEngine)
	}
}

// whisperLocal shells out to a whisper.cpp binary.
type whisperLocal struct {
	bin   string
	model string
}

func (w *whisperLocal) Transcribe(ctx context.Context, wavPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	// -nt suppresses timestamps so stdout is the bare transcript.
	cmd := exec.CommandContext(ctx, w.bin, "-m", w.model, "-f", wavPath, "-l", "ja", "-nt")
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper failed: %w: %s", err, strings.TrimSpace(errOut.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

const openAIAudioBase = "https://api.openai.com/v1/audio"

// whisperRemote calls the hosted transcription API.
type whisperRemote struct {
	apiKey string
	client *http.Client
}

func newWhisperRemote() (*whisperRemote, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	return &whisperRemote{apiKey: key, client: &http.Client{Timeout: 60 * time.Second}}, nil
}

func (w *whisperRemote) Transcribe(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", "whisper-1")
	_ = mw.WriteField("language", "ja")
	_ = mw.WriteField("response_format", "text")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIAudioBase+"/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API returned %s: %s", resp.Status, strings.TrimSpace(string(text)))
	}
	return strings.TrimSpace(string(text)), nil
}

// piperTTS shells out to piper, which writes a WAV to the given path.
type piperTTS struct {
	bin   string
	model string
}

func (p *piperTTS) Synthesize(ctx context.Context, text string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	out := filepath.Join(os.TempDir(), fmt.Sprintf("shipos_tts_%d.wav", time.Now().UnixNano()))
	cmd := exec.CommandContext(ctx, p.bin, "--model", p.model, "--output_file", out)
	cmd.Stdin = strings.NewReader(text)
	var errOut bytes.Buffer
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", false, fmt.Errorf("piper failed: %w: %s", err, strings.TrimSpace(errOut.String()))
	}
	return out, false, nil
}

// remoteTTS calls the hosted speech API.
type remoteTTS struct {
	apiKey string
	voice  string
	client *http.Client
}

func newRemoteTTS(voice string) (*remoteTTS, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if voice == "" {
		voice = "nova"
	}
	return &remoteTTS{apiKey: key, voice: voice, client: &http.Client{Timeout: 60 * time.Second}}, nil
}

func (r *remoteTTS) Synthesize(ctx context.Context, text string) (string, bool, error) {
	payload := fmt.Sprintf(`{"model":"tts-1","voice":%q,"input":%q,"response_format":"wav"}`, r.voice, text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIAudioBase+"/speech", strings.NewReader(payload))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, fmt.Errorf("speech API returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	out := filepath.Join(os.TempDir(), fmt.Sprintf("shipos_tts_%d.wav", time.Now().UnixNano()))
	f, err := os.Create(out)
	if err != nil {
		return "", false, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return "", false, err
	}
	if err := f.Close(); err != nil {
		return "", false, err
	}
	return out, false, nil
}

// hybridTTS serves from a content-addressed cache, synthesizes remotely on
// miss, and falls back to the local engine when the network is down.
type hybridTTS struct {
	cacheDir string
	voice    string
	remote   TTSEngine
	local    TTSEngine
	logger   *slog.Logger
}

func (h *hybridTTS) cachePath(text string) string {
	sum := sha256.Sum256([]byte(h.voice + "\x00" + text))
	return filepath.Join(h.cacheDir, hex.EncodeToString(sum[:])+".wav")
}

func (h *hybridTTS) Synthesize(ctx context.Context, text string) (string, bool, error) {
	cached := h.cachePath(text)
	if info, err := os.Stat(cached); err == nil && info.Size() > 0 {
		return cached, true, nil
	}

	path, _, err := h.remote.Synthesize(ctx, text)
	if err == nil {
		if mkErr := os.MkdirAll(h.cacheDir, 0o755); mkErr == nil {
			if cpErr := copyFile(path, cached); cpErr == nil {
				_ = os.Remove(path)
				return cached, true, nil
			}
		}
		return path, false, nil
	}

	h.logger.Warn("Remote synthesis failed, falling back to local", "error", err)
	return h.local.Synthesize(ctx, text)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

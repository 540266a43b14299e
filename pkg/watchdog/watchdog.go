// Package watchdog is the self-repair sweep: restart the stuck service,
// rotate oversized logs, gzip old ones, rebuild the memory index, and
// isolate unwritable storage. Every action lands in the recovery journal.
package watchdog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/execguard"
	"github.com/bcnofne/shipos/pkg/memory"
	"github.com/bcnofne/shipos/pkg/store"
)

var repairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shipos_watchdog_repairs_total",
	Help: "Repair actions taken, by kind.",
}, []string{"action"})

// RepairAction is one journal entry.
type RepairAction struct {
	Action    string `json:"action"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// Watchdog runs repair sweeps, either one-shot or as a daemon.
type Watchdog struct {
	cfg    *config.WatchdogConfig
	st     *store.Store
	mem    *memory.Store
	exec   *execguard.Executor
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watchdog.
func New(cfg *config.WatchdogConfig, st *store.Store, mem *memory.Store, exec *execguard.Executor) *Watchdog {
	return &Watchdog{
		cfg:    cfg,
		st:     st,
		mem:    mem,
		exec:   exec,
		logger: slog.Default().With("component", "watchdog"),
	}
}

// Start launches the daemon loop.
func (w *Watchdog) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
	w.logger.Info("Watchdog started", "interval", w.cfg.Interval.Duration)
}

// Stop signals the loop to exit and waits for it.
func (w *Watchdog) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.logger.Info("Watchdog stopped")
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one full repair sweep and returns the actions taken.
func (w *Watchdog) RunOnce(ctx context.Context) []RepairAction {
	var actions []RepairAction
	actions = append(actions, w.checkService(ctx)...)
	actions = append(actions, w.checkLogs()...)
	actions = append(actions, w.checkMemoryIntegrity()...)
	actions = append(actions, w.checkWritability()...)

	for _, a := range actions {
		repairsTotal.WithLabelValues(a.Action).Inc()
		if err := store.AppendJSONL(w.st.RecoveryLogPath(), a); err != nil {
			w.logger.Error("Failed to journal repair action", "error", err)
		}
		w.st.LogEvent(store.LogRepair, a.Action, a.Detail)
	}
	if len(actions) > 0 {
		w.logger.Info("Repair sweep complete", "actions", len(actions))
	}
	return actions
}

func (w *Watchdog) action(kind, detail string) RepairAction {
	w.logger.Warn("Repair action", "action", kind, "detail", detail)
	return RepairAction{
		Action:    kind,
		Detail:    detail,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// checkService restarts the primary unit when inactive.
func (w *Watchdog) checkService(ctx context.Context) []RepairAction {
	res := w.exec.Run(ctx, "systemctl is-active "+w.cfg.ServiceUnit)
	state := strings.TrimSpace(res.Stdout)
	if res.Success && state == "active" {
		return nil
	}
	restart := w.exec.Run(ctx, "systemctl restart "+w.cfg.ServiceUnit)
	detail := fmt.Sprintf("%s was %q, restart ok=%v", w.cfg.ServiceUnit, state, restart.Success)
	return []RepairAction{w.action("service_restart", detail)}
}

// checkLogs gzips logs past the age limit and rotates the oversized
// current log with a timestamp suffix.
func (w *Watchdog) checkLogs() []RepairAction {
	dir := filepath.Join(w.st.DataDir(), "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var actions []RepairAction
	ageCutoff := time.Now().AddDate(0, 0, -w.cfg.LogMaxAgeDays)
	sizeCutoff := int64(w.cfg.LogMaxSizeMB) * 1024 * 1024

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(ageCutoff) {
			if err := gzipFile(path); err != nil {
				w.logger.Error("Log gzip failed", "file", path, "error", err)
				continue
			}
			actions = append(actions, w.action("log_compress", e.Name()))
			continue
		}

		if info.Size() > sizeCutoff {
			rotated := strings.TrimSuffix(path, ".log") + "_" + time.Now().Format("20060102150405") + ".log"
			if err := os.Rename(path, rotated); err != nil {
				w.logger.Error("Log rotate failed", "file", path, "error", err)
				continue
			}
			if err := gzipFile(rotated); err != nil {
				w.logger.Error("Rotated log gzip failed", "file", rotated, "error", err)
			}
			actions = append(actions, w.action("log_rotate",
				fmt.Sprintf("%s (%d MB)", e.Name(), info.Size()/1024/1024)))
		}
	}
	return actions
}

// checkMemoryIntegrity rebuilds a missing/corrupt index and reports
// zero-byte memory files.
func (w *Watchdog) checkMemoryIntegrity() []RepairAction {
	var actions []RepairAction

	var probe map[string]any
	data, err := os.ReadFile(w.st.MemoryIndexPath())
	corrupt := err == nil && json.Unmarshal(data, &probe) != nil
	if os.IsNotExist(err) || corrupt {
		if err := w.mem.RebuildIndex(); err != nil {
			w.logger.Error("Index rebuild failed", "error", err)
		} else {
			actions = append(actions, w.action("index_rebuild", "memory index regenerated"))
		}
	}

	entries, err := os.ReadDir(w.st.TopicsDir())
	if err != nil {
		return actions
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || e.IsDir() {
			continue
		}
		if info.Size() == 0 {
			actions = append(actions, w.action("zero_byte_memory", e.Name()))
		}
	}
	return actions
}

// checkWritability write-probes the data root and prepares a fallback
// directory when it fails.
func (w *Watchdog) checkWritability() []RepairAction {
	if err := w.st.Health(); err == nil {
		return nil
	}
	fallback, ferr := w.st.FallbackDir()
	detail := "data root unwritable"
	if ferr != nil {
		detail += ", fallback creation failed: " + ferr.Error()
	} else {
		detail += ", fallback at " + fallback
	}
	return []RepairAction{w.action("storage_isolate", detail)}
}

// gzipFile compresses path to path.gz and removes the original.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// Package storage moves cold files from the fast tier to the archive tier
// and watches fast-tier fullness.
package storage

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sys/unix"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

var archiveMoves = promauto.NewCounter(prometheus.CounterOpts{
	Name: "shipos_archive_moves_total",
	Help: "Files moved to the archive tier.",
})

// ColdFile is one archive candidate.
type ColdFile struct {
	Path     string
	RelPath  string
	Size     int64
	AccessAt time.Time
}

// MoveResult reports one completed archive move.
type MoveResult struct {
	From string
	To   string
	Size int64
}

// Warning is the fullness monitor's report.
type Warning struct {
	Percent   float64
	Threshold float64
	Message   string
}

// Tierer implements the cold-file policy over the configured roots.
type Tierer struct {
	cfg    *config.StorageConfig
	st     *store.Store
	logger *slog.Logger
}

// New creates a tierer.
func New(cfg *config.StorageConfig, st *store.Store) *Tierer {
	return &Tierer{
		cfg:    cfg,
		st:     st,
		logger: slog.Default().With("component", "storage"),
	}
}

// atime returns the last access time of path.
func atime(path string) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, err
	}
	return time.Unix(st.Atim.Sec, st.Atim.Nsec), nil
}

// excluded matches the relative path and basename against the exclude
// patterns.
func (t *Tierer) excluded(rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range t.cfg.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		// Directory patterns like ".git/*" also veto anything below.
		if prefix, found := strings.CutSuffix(pattern, "/*"); found {
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// FindOldFiles walks the fast tier and returns regular files whose last
// access is older than the cutoff and which match no exclude pattern.
func (t *Tierer) FindOldFiles(days int) ([]ColdFile, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	var cold []ColdFile

	err := filepath.WalkDir(t.cfg.FastRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(t.cfg.FastRoot, path)
		if err != nil || t.excluded(rel) {
			return nil
		}
		accessed, err := atime(path)
		if err != nil || accessed.After(cutoff) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		cold = append(cold, ColdFile{Path: path, RelPath: rel, Size: info.Size(), AccessAt: accessed})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking fast tier: %w", err)
	}
	return cold, nil
}

// ArchiveOld moves every cold file under the same relative path in the
// archive tier. Collisions get a timestamp suffix. dryRun only reports.
func (t *Tierer) ArchiveOld(dryRun bool) ([]MoveResult, error) {
	cold, err := t.FindOldFiles(t.cfg.ColdAfterDays)
	if err != nil {
		return nil, err
	}

	var moved []MoveResult
	for _, f := range cold {
		dest := filepath.Join(t.cfg.ArchiveRoot, f.RelPath)
		if dryRun {
			moved = append(moved, MoveResult{From: f.Path, To: dest, Size: f.Size})
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			t.logger.Error("Failed to create archive dir", "dir", filepath.Dir(dest), "error", err)
			continue
		}
		if _, err := os.Stat(dest); err == nil {
			ext := filepath.Ext(dest)
			dest = strings.TrimSuffix(dest, ext) + "_" + time.Now().Format("20060102150405") + ext
		}
		if err := moveFile(f.Path, dest); err != nil {
			t.logger.Error("Archive move failed", "from", f.Path, "error", err)
			continue
		}
		archiveMoves.Inc()
		moved = append(moved, MoveResult{From: f.Path, To: dest, Size: f.Size})
	}

	if !dryRun && len(moved) > 0 {
		t.st.LogEvent(store.LogCargo, fmt.Sprintf("archived %d cold files", len(moved)), "")
		t.logger.Info("Archive pass complete", "moved", len(moved))
	}
	return moved, nil
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

// Monitor returns a warning when fast-tier usage exceeds the threshold.
func (t *Tierer) Monitor() (*Warning, error) {
	usage, err := disk.Usage(t.cfg.FastRoot)
	if err != nil {
		return nil, fmt.Errorf("reading fast tier usage: %w", err)
	}
	if usage.UsedPercent < t.cfg.MonitorThreshold {
		return nil, nil
	}
	return &Warning{
		Percent:   usage.UsedPercent,
		Threshold: t.cfg.MonitorThreshold,
		Message:   fmt.Sprintf("fast tier at %.1f%% (threshold %.0f%%)", usage.UsedPercent, t.cfg.MonitorThreshold),
	}, nil
}

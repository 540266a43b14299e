// Package memory implements the agent's long-term memory: topic files,
// a regenerable index, an append-only diary, and keyword search.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bcnofne/shipos/pkg/store"
)

// Record describes one topic file tracked by the index.
type Record struct {
	Topic     string `json:"topic"`
	Filename  string `json:"filename"`
	CreatedAt string `json:"created_at"`
	Size      int64  `json:"size"`
	Hash      string `json:"hash"`
}

// Index is the regenerable summary of the topic directory.
type Index struct {
	TotalCount int                 `json:"total_count"`
	Topics     map[string][]Record `json:"topics"`
	UpdatedAt  string              `json:"updated_at"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Record  Record
	Matches int
	Preview string
}

// Store is the memory subsystem. The planner is its only writer; the quick
// responder and prompt builder read through it.
type Store struct {
	st     *store.Store
	logger *slog.Logger
}

// New creates the memory store over the shared data directory.
func New(st *store.Store) *Store {
	return &Store{
		st:     st,
		logger: slog.Default().With("component", "memory"),
	}
}

// topicOf derives the topic from the filename's leading token.
func topicOf(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if idx := strings.Index(base, "_"); idx > 0 {
		return base[:idx]
	}
	return base
}

// Write stores a topic file and updates the index atomically.
func (m *Store) Write(filename, content string) error {
	filename = filepath.Base(filename)
	if filename == "" || filename == "." {
		return fmt.Errorf("invalid memory filename")
	}
	path := filepath.Join(m.st.TopicsDir(), filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing memory file: %w", err)
	}
	if err := m.RebuildIndex(); err != nil {
		m.logger.Error("Index rebuild after write failed", "error", err)
	}
	m.st.LogEvent(store.LogCargo, "memory written", filename)
	return nil
}

// AppendDiary appends a timestamped diary block.
func (m *Store) AppendDiary(entry string) error {
	f, err := os.OpenFile(m.st.DiaryPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening diary: %w", err)
	}
	defer f.Close()
	block := fmt.Sprintf("[%s]\n%s\n", time.Now().Format("2006-01-02 15:04:05"), entry)
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("appending diary: %w", err)
	}
	return nil
}

// DiaryTail returns the last n lines of the diary.
func (m *Store) DiaryTail(n int) []string {
	return store.TailLines(m.st.DiaryPath(), n)
}

// RebuildIndex regenerates index.json from the topic directory. Idempotent:
// the result depends only on the directory contents.
func (m *Store) RebuildIndex() error {
	entries, err := os.ReadDir(m.st.TopicsDir())
	if err != nil {
		return fmt.Errorf("reading topics dir: %w", err)
	}

	idx := Index{Topics: make(map[string][]Record)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.st.TopicsDir(), e.Name()))
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)
		rec := Record{
			Topic:     topicOf(e.Name()),
			Filename:  e.Name(),
			CreatedAt: info.ModTime().Format(time.RFC3339),
			Size:      info.Size(),
			Hash:      hex.EncodeToString(sum[:8]),
		}
		idx.Topics[rec.Topic] = append(idx.Topics[rec.Topic], rec)
		idx.TotalCount++
	}
	for _, recs := range idx.Topics {
		sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt < recs[j].CreatedAt })
	}
	idx.UpdatedAt = time.Now().Format(time.RFC3339)

	return store.WriteSnapshot(m.st.MemoryIndexPath(), idx)
}

// ReadIndex loads the index, rebuilding it when missing or corrupt.
func (m *Store) ReadIndex() Index {
	var idx Index
	if store.ReadSnapshot(m.st.MemoryIndexPath(), &idx) && idx.Topics != nil {
		return idx
	}
	if err := m.RebuildIndex(); err != nil {
		m.logger.Error("Index rebuild failed", "error", err)
		return Index{Topics: map[string][]Record{}}
	}
	store.ReadSnapshot(m.st.MemoryIndexPath(), &idx)
	if idx.Topics == nil {
		idx.Topics = map[string][]Record{}
	}
	return idx
}

// Recent returns the newest n records across all topics.
func (m *Store) Recent(n int) []Record {
	idx := m.ReadIndex()
	var all []Record
	for _, recs := range idx.Topics {
		all = append(all, recs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Preview returns the first limit characters of a topic file.
func (m *Store) Preview(filename string, limit int) string {
	data, err := os.ReadFile(filepath.Join(m.st.TopicsDir(), filepath.Base(filename)))
	if err != nil {
		return ""
	}
	runes := []rune(string(data))
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

// Search scans all topic files for the keyword, case-insensitively, ranking
// hits by match count descending.
func (m *Store) Search(keyword string, limit int) []SearchHit {
	if keyword == "" {
		return nil
	}
	needle := strings.ToLower(keyword)
	idx := m.ReadIndex()

	var hits []SearchHit
	for _, recs := range idx.Topics {
		for _, rec := range recs {
			data, err := os.ReadFile(filepath.Join(m.st.TopicsDir(), rec.Filename))
			if err != nil {
				continue
			}
			count := strings.Count(strings.ToLower(string(data)), needle)
			if count == 0 {
				continue
			}
			preview := []rune(string(data))
			if len(preview) > 200 {
				preview = preview[:200]
			}
			hits = append(hits, SearchHit{Record: rec, Matches: count, Preview: string(preview)})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Matches > hits[j].Matches })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Summary renders the short Markdown digest the planner embeds in its
// prompt: counts per topic plus the newest few entries.
func (m *Store) Summary() string {
	idx := m.ReadIndex()
	if idx.TotalCount == 0 {
		return "記憶なし"
	}

	topics := make([]string, 0, len(idx.Topics))
	for t := range idx.Topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	var b strings.Builder
	fmt.Fprintf(&b, "記憶: %d件\n", idx.TotalCount)
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s: %d件\n", t, len(idx.Topics[t]))
	}
	b.WriteString("最近:\n")
	for _, rec := range m.Recent(3) {
		fmt.Fprintf(&b, "  - %s (%s)\n", rec.Filename, rec.CreatedAt)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Cleanup removes topic files older than the cutoff and rebuilds the index.
// Returns the number of files removed.
func (m *Store) Cleanup(days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	entries, err := os.ReadDir(m.st.TopicsDir())
	if err != nil {
		return 0, fmt.Errorf("reading topics dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(m.st.TopicsDir(), e.Name())); err != nil {
				m.logger.Error("Failed to remove old memory file", "file", e.Name(), "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		if err := m.RebuildIndex(); err != nil {
			return removed, err
		}
		m.st.LogEvent(store.LogCargo, fmt.Sprintf("memory cleanup removed %d files", removed), "")
	}
	return removed, nil
}

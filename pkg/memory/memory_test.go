package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/store"
)

func newTestMemory(t *testing.T) (*Store, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	return New(st), st
}

func TestTopicOf(t *testing.T) {
	tests := map[string]string{
		"user_preferences.md": "user",
		"weather_2026-08.md":  "weather",
		"notes.md":            "notes",
		"_hidden.md":          "_hidden", // leading underscore is not a separator
	}
	for filename, want := range tests {
		assert.Equal(t, want, topicOf(filename), filename)
	}
}

func TestWriteUpdatesIndex(t *testing.T) {
	m, _ := newTestMemory(t)

	require.NoError(t, m.Write("user_likes.md", "コーヒーが好き"))
	require.NoError(t, m.Write("user_schedule.md", "朝型"))
	require.NoError(t, m.Write("weather_log.md", "晴れ"))

	idx := m.ReadIndex()
	assert.Equal(t, 3, idx.TotalCount)
	assert.Len(t, idx.Topics["user"], 2)
	assert.Len(t, idx.Topics["weather"], 1)
}

func TestWriteStripsPathComponents(t *testing.T) {
	m, st := newTestMemory(t)
	require.NoError(t, m.Write("../../escape.md", "content"))

	// The file lands inside the topics dir, nowhere else.
	_, err := os.Stat(filepath.Join(st.TopicsDir(), "escape.md"))
	assert.NoError(t, err)
}

func TestRebuildIndexIdempotent(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.Write("user_a.md", "alpha"))

	require.NoError(t, m.RebuildIndex())
	first := m.ReadIndex()
	require.NoError(t, m.RebuildIndex())
	second := m.ReadIndex()

	assert.Equal(t, first.TotalCount, second.TotalCount)
	assert.Equal(t, first.Topics["user"][0].Hash, second.Topics["user"][0].Hash)
}

func TestReadIndexRecoversFromCorruption(t *testing.T) {
	m, st := newTestMemory(t)
	require.NoError(t, m.Write("user_a.md", "alpha"))

	require.NoError(t, os.WriteFile(st.MemoryIndexPath(), []byte("{broken"), 0o644))
	idx := m.ReadIndex()
	assert.Equal(t, 1, idx.TotalCount, "index regenerated from topic files")
}

func TestSearchRanking(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.Write("notes_one.md", "coffee coffee coffee"))
	require.NoError(t, m.Write("notes_two.md", "coffee and tea"))
	require.NoError(t, m.Write("notes_three.md", "only tea here"))

	hits := m.Search("COFFEE", 10)
	require.Len(t, hits, 2, "case-insensitive")
	assert.Equal(t, "notes_one.md", hits[0].Record.Filename)
	assert.Equal(t, 3, hits[0].Matches)
	assert.Equal(t, 1, hits[1].Matches)

	assert.Nil(t, m.Search("", 10))
	assert.Len(t, m.Search("coffee", 1), 1, "limit applies after ranking")
}

func TestDiary(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.AppendDiary("静かな一日だった"))
	require.NoError(t, m.AppendDiary("夜に雨"))

	tail := m.DiaryTail(10)
	joined := ""
	for _, line := range tail {
		joined += line + "\n"
	}
	assert.Contains(t, joined, "静かな一日だった")
	assert.Contains(t, joined, "夜に雨")
}

func TestSummary(t *testing.T) {
	m, _ := newTestMemory(t)
	assert.Equal(t, "記憶なし", m.Summary())

	require.NoError(t, m.Write("user_a.md", "alpha"))
	s := m.Summary()
	assert.Contains(t, s, "記憶: 1件")
	assert.Contains(t, s, "- user: 1件")
	assert.Contains(t, s, "user_a.md")
}

func TestCleanup(t *testing.T) {
	m, st := newTestMemory(t)
	require.NoError(t, m.Write("user_old.md", "stale"))
	require.NoError(t, m.Write("user_new.md", "fresh"))

	old := time.Now().AddDate(0, 0, -120)
	require.NoError(t, os.Chtimes(filepath.Join(st.TopicsDir(), "user_old.md"), old, old))

	removed, err := m.Cleanup(90)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	idx := m.ReadIndex()
	assert.Equal(t, 1, idx.TotalCount)
	assert.Equal(t, "user_new.md", idx.Topics["user"][0].Filename)
}

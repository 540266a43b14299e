package inbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/store"
)

func newTestInbox(t *testing.T) (*Inbox, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	return New(st), st
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"今日の天気は?", TypeQuery},
		{"明日の予定を教えて", TypeQuery},
		{"サーバーの状態はどう", TypeQuery},
		{"Dockerとは", TypeQuery},
		{"うん", TypeQuery},       // short, no imperative: default query
		{"整理して", TypeGoal},     // short but imperative
		{"実行", TypeGoal},
		{"ダウンロードフォルダを日付ごとに並べ替えておいて", TypeGoal},
		{"What is the disk usage?", TypeQuery},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.text), tt.text)
	}
}

func TestSubmitAppendsEvent(t *testing.T) {
	in, st := newTestInbox(t)

	ev := in.Submit("古いログを整理して", "U123")
	assert.Equal(t, TypeGoal, ev.Type)
	assert.NotEmpty(t, ev.ID)

	events := store.ReadJSONL[Event](st.InboxPath())
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, "U123", events[0].UserID)
}

func TestDrainConsumesExactlyOnce(t *testing.T) {
	in, st := newTestInbox(t)

	in.Submit("状態は?", "U123")
	in.SubmitTyped(TypeGoal, "写真をアーカイブに移動", "U123")

	events := in.Drain()
	require.Len(t, events, 2)

	// Second drain sees nothing.
	assert.Empty(t, in.Drain())

	// Every drained event is archived under today's history dir.
	dayDir := st.HistoryDayDir(time.Now())
	for _, ev := range events {
		_, err := os.Stat(filepath.Join(dayDir, ev.ID+".json"))
		assert.NoError(t, err, ev.ID)
	}
}

func TestDrainEmptyInbox(t *testing.T) {
	in, _ := newTestInbox(t)
	assert.Nil(t, in.Drain())
}

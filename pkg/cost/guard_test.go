package cost

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

func testCostConfig() *config.CostConfig {
	return &config.CostConfig{
		Normal:     config.CostThresholds{Warning: 200, Stop: 300},
		SpecialDay: config.CostThresholds{Warning: 500, Alert: 800, Stop: 1000},
		Prices: map[string]config.ModelPrice{
			"gpt-4o": {InputPer1K: 0.5, OutputPer1K: 1.5},
		},
		ConfirmationTimeout: config.Duration{Duration: 10 * time.Minute},
	}
}

func newTestGuard(t *testing.T, now time.Time) (*Guard, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	g := NewGuard(st, testCostConfig())
	g.now = func() time.Time { return now }
	// Re-anchor StartDate to the frozen clock.
	g.usage.StartDate = now.Format("2006-01-02")
	return g, st
}

func TestCalculateCost(t *testing.T) {
	g, _ := newTestGuard(t, time.Now())
	assert.InDelta(t, 0.5+3.0, g.CalculateCost("gpt-4o", 1000, 2000), 1e-9)
	assert.Zero(t, g.CalculateCost("unknown-model", 1000, 2000))
}

func TestRecordPersistsAcrossRestart(t *testing.T) {
	g, st := newTestGuard(t, time.Now())
	g.Record("gpt-4o", 1000, 1000)
	g.Record("gpt-4o", 1000, 1000)

	assert.InDelta(t, 4.0, g.TodayCost(), 1e-9)

	g2 := NewGuard(st, testCostConfig())
	assert.InDelta(t, 4.0, g2.Snapshot().TotalCost, 1e-9)
	assert.Equal(t, 2, g2.Snapshot().TotalRequests)
	assert.Equal(t, g.Snapshot().StartDate, g2.Snapshot().StartDate)
}

func TestIsSpecialDay(t *testing.T) {
	for d, want := range map[int]bool{
		-1: false, 0: true, 1: false, 5: false, 6: true, 7: false, 12: true,
	} {
		assert.Equal(t, want, IsSpecialDay(d), "day %d", d)
	}
}

func TestThresholdsFollowSchedule(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, base)

	// Day 0 is special.
	assert.Equal(t, 1000.0, g.Thresholds().Stop)

	g.now = func() time.Time { return base.AddDate(0, 0, 3) }
	assert.Equal(t, 300.0, g.Thresholds().Stop)

	g.now = func() time.Time { return base.AddDate(0, 0, 6) }
	assert.Equal(t, 1000.0, g.Thresholds().Stop)
}

func TestCheckLadder(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, base.AddDate(0, 0, 2)) // a normal day
	g.usage.StartDate = base.Format("2006-01-02")

	assert.Empty(t, g.Check())

	g.Record("gpt-4o", 150_000, 100_000) // ¥225
	assert.Equal(t, LevelWarning, g.Check())

	g.Record("gpt-4o", 100_000, 50_000) // ¥350 total
	assert.Equal(t, LevelStop, g.Check())
}

func TestCheckAlertOnSpecialDay(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, base) // day 0: alert rung exists at ¥800

	g.Record("gpt-4o", 600_000, 400_000) // ¥900
	assert.Equal(t, LevelAlert, g.Check())
}

func TestConfirmationAutoExpires(t *testing.T) {
	g, _ := newTestGuard(t, time.Now())
	g.now = time.Now

	approved, msg := g.RequestConfirmation("expensive deploy", 500, 0)
	assert.False(t, approved)
	assert.Equal(t, "auto-expired", msg)

	var conf Confirmation
	require.True(t, store.ReadSnapshot(g.requestPath(latestConfirmationID(t, g)), &conf))
	assert.Equal(t, ConfirmExpired, conf.Status)
}

func TestResolveFirstReplyWins(t *testing.T) {
	g, _ := newTestGuard(t, time.Now())

	conf := Confirmation{
		ID:                "abc12345",
		ActionDescription: "expensive deploy",
		EstimatedCost:     500,
		CreatedAt:         time.Now().Format(time.RFC3339),
		Status:            ConfirmPending,
	}
	require.NoError(t, store.WriteSnapshot(g.requestPath(conf.ID), conf))

	require.NoError(t, g.Resolve(conf.ID, true, "line"))

	err := g.Resolve(conf.ID, false, "discord")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already answered")

	var reply Confirmation
	require.True(t, store.ReadSnapshot(g.replyPath(conf.ID), &reply))
	assert.Equal(t, ConfirmApproved, reply.Status)
	assert.Equal(t, "line", reply.Channel)
}

func TestResolveUnknownID(t *testing.T) {
	g, _ := newTestGuard(t, time.Now())
	assert.Error(t, g.Resolve("nope1234", true, "line"))
}

func TestPendingListsOnlyUnanswered(t *testing.T) {
	g, _ := newTestGuard(t, time.Now())

	require.NoError(t, store.WriteSnapshot(g.requestPath("aaaa1111"),
		Confirmation{ID: "aaaa1111", Status: ConfirmPending}))
	require.NoError(t, store.WriteSnapshot(g.requestPath("bbbb2222"),
		Confirmation{ID: "bbbb2222", Status: ConfirmDenied}))

	pending := g.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "aaaa1111", pending[0].ID)
}

// latestConfirmationID finds the single request file the test created.
func latestConfirmationID(t *testing.T, g *Guard) string {
	t.Helper()
	entries, err := os.ReadDir(g.st.ConfirmationsDir())
	require.NoError(t, err)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".reply.json") {
			continue
		}
		return strings.TrimSuffix(e.Name(), ".json")
	}
	t.Fatal("no confirmation request written")
	return ""
}

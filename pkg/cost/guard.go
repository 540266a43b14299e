// Package cost tracks daily LLM spend against threshold ladders and runs
// the confirmation protocol for expensive actions.
package cost

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

// Threshold levels, in escalating order.
const (
	LevelWarning = "warning"
	LevelAlert   = "alert"
	LevelStop    = "stop"
)

var (
	costTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipos_llm_cost_total",
		Help: "Cumulative LLM cost in yen.",
	})
	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipos_llm_tokens_total",
		Help: "Cumulative LLM tokens by direction.",
	}, []string{"direction"})
)

// DayUsage is one calendar day's bucket.
type DayUsage struct {
	Cost         float64 `json:"cost"`
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// Usage is the persisted ledger. StartDate anchors day 0 for the
// special-day schedule and must survive restarts.
type Usage struct {
	StartDate     string              `json:"start_date"`
	TotalCost     float64             `json:"total_cost"`
	TotalRequests int                 `json:"total_requests"`
	Daily         map[string]DayUsage `json:"daily"`
}

// Guard is the cost guard. Single writer of the usage ledger.
type Guard struct {
	st     *store.Store
	cfg    *config.CostConfig
	logger *slog.Logger

	mu    sync.Mutex
	usage Usage

	now func() time.Time // test seam
}

// NewGuard loads (or initializes) the usage ledger.
func NewGuard(st *store.Store, cfg *config.CostConfig) *Guard {
	g := &Guard{
		st:     st,
		cfg:    cfg,
		logger: slog.Default().With("component", "cost"),
		now:    time.Now,
	}
	g.usage = Usage{Daily: make(map[string]DayUsage)}
	if store.ReadSnapshot(st.UsagePath(), &g.usage) && g.usage.Daily == nil {
		g.usage.Daily = make(map[string]DayUsage)
	}
	if g.usage.StartDate == "" {
		g.usage.StartDate = g.now().Format("2006-01-02")
		g.persistLocked()
	}
	return g
}

// CalculateCost is the pure per-call price for a model. Unknown models cost
// zero (and are logged once at record time).
func (g *Guard) CalculateCost(model string, inTok, outTok int) float64 {
	price, ok := g.cfg.Prices[model]
	if !ok {
		return 0
	}
	return float64(inTok)/1000*price.InputPer1K + float64(outTok)/1000*price.OutputPer1K
}

// Record adds a call's tokens to today's bucket and persists the ledger.
func (g *Guard) Record(model string, inTok, outTok int) float64 {
	cost := g.CalculateCost(model, inTok, outTok)
	if _, ok := g.cfg.Prices[model]; !ok {
		g.logger.Warn("No price entry for model, recording zero cost", "model", model)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	day := g.now().Format("2006-01-02")
	bucket := g.usage.Daily[day]
	bucket.Cost += cost
	bucket.Requests++
	bucket.InputTokens += inTok
	bucket.OutputTokens += outTok
	g.usage.Daily[day] = bucket
	g.usage.TotalCost += cost
	g.usage.TotalRequests++
	g.persistLocked()

	costTotal.Add(cost)
	tokensTotal.WithLabelValues("input").Add(float64(inTok))
	tokensTotal.WithLabelValues("output").Add(float64(outTok))
	return cost
}

// TodayCost returns the current day's spend.
func (g *Guard) TodayCost() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage.Daily[g.now().Format("2006-01-02")].Cost
}

// DaysSinceStart returns the ordinal of today counted from StartDate.
func (g *Guard) DaysSinceStart() int {
	g.mu.Lock()
	start := g.usage.StartDate
	g.mu.Unlock()

	t, err := time.Parse("2006-01-02", start)
	if err != nil {
		return 0
	}
	return int(g.now().Sub(t).Hours() / 24)
}

// IsSpecialDay reports whether day ordinal d falls on the relaxed-budget
// schedule: day 0 and every sixth day after.
func IsSpecialDay(d int) bool {
	return d >= 0 && d%6 == 0
}

// Thresholds returns today's active threshold ladder. Normal days have no
// alert rung (Alert == 0).
func (g *Guard) Thresholds() config.CostThresholds {
	if IsSpecialDay(g.DaysSinceStart()) {
		return g.cfg.SpecialDay
	}
	return g.cfg.Normal
}

// Check returns the highest triggered level for today's spend, or "".
// LevelStop signals the supervisor to halt the autonomous loop.
func (g *Guard) Check() string {
	today := g.TodayCost()
	th := g.Thresholds()
	switch {
	case today > th.Stop:
		return LevelStop
	case th.Alert > 0 && today > th.Alert:
		return LevelAlert
	case today > th.Warning:
		return LevelWarning
	default:
		return ""
	}
}

// Snapshot returns a copy of the ledger for status reporting.
func (g *Guard) Snapshot() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := g.usage
	copied.Daily = make(map[string]DayUsage, len(g.usage.Daily))
	for k, v := range g.usage.Daily {
		copied.Daily[k] = v
	}
	return copied
}

func (g *Guard) persistLocked() {
	if err := store.WriteSnapshot(g.st.UsagePath(), g.usage); err != nil {
		g.logger.Error("Failed to persist usage ledger", "error", err)
	}
}

// StatusLine renders a one-line budget summary for chat/status output.
func (g *Guard) StatusLine() string {
	th := g.Thresholds()
	special := ""
	if IsSpecialDay(g.DaysSinceStart()) {
		special = " (特別日)"
	}
	return fmt.Sprintf("本日 ¥%.1f / 停止 ¥%.0f%s 累計 ¥%.1f",
		g.TodayCost(), th.Stop, special, g.Snapshot().TotalCost)
}

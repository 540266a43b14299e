// Package agent implements the planner loop: the perpetual think→act cycle
// that drains the inbox, builds context, calls the model, and executes the
// returned plan through the executor, memory, and notifier.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/cost"
	"github.com/bcnofne/shipos/pkg/execguard"
	"github.com/bcnofne/shipos/pkg/inbox"
	"github.com/bcnofne/shipos/pkg/llm"
	"github.com/bcnofne/shipos/pkg/memory"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/narrator"
	"github.com/bcnofne/shipos/pkg/notify"
	"github.com/bcnofne/shipos/pkg/store"
)

// ErrCostStop is returned by Run when the cost guard's stop level halts
// the autonomous loop. The rest of the process stays up.
var ErrCostStop = errors.New("cost guard stop level reached")

var (
	iterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipos_planner_iterations_total",
		Help: "Planner iterations completed.",
	})
	iterationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipos_planner_failures_total",
		Help: "Planner iteration failures by stage.",
	}, []string{"stage"})
)

// Planner drives the think→act loop. It owns current_goal exclusively.
type Planner struct {
	cfg      *config.Config
	st       *store.Store
	mem      *memory.Store
	guard    *cost.Guard
	exec     *execguard.Executor
	in       *inbox.Inbox
	client   llm.Client
	notifier *notify.Service
	modeMgr  *modes.Manager
	quick    *QuickResponder
	modifier *SelfModifier

	goals       *goalState
	iteration   int
	errorStreak int
	logger      *slog.Logger
}

// NewPlanner wires the planner to its collaborators.
func NewPlanner(
	cfg *config.Config,
	st *store.Store,
	mem *memory.Store,
	guard *cost.Guard,
	exec *execguard.Executor,
	in *inbox.Inbox,
	client llm.Client,
	notifier *notify.Service,
	modeMgr *modes.Manager,
) *Planner {
	return &Planner{
		cfg:      cfg,
		st:       st,
		mem:      mem,
		guard:    guard,
		exec:     exec,
		in:       in,
		client:   client,
		notifier: notifier,
		modeMgr:  modeMgr,
		quick:    NewQuickResponder(cfg, client, guard),
		modifier: NewSelfModifier(cfg, client, guard),
		goals:    newGoalState(st, "システムの状態を把握して、できることを探す"),
		logger:   slog.Default().With("component", "planner"),
	}
}

// Quick exposes the quick responder for the webhook's query path.
func (p *Planner) Quick() *QuickResponder { return p.quick }

// UpdateGoal is the external mutation path for the current goal.
func (p *Planner) UpdateGoal(text, source string) {
	p.goals.UpdateGoal(text, source)
	p.st.LogEvent(store.LogNavigation, "goal set: "+text, "source="+source)
	if source == "user" {
		p.notifier.Event(notify.KindResponse, narrator.GoalChange(text, source))
	}
}

// CurrentGoal returns the active goal string.
func (p *Planner) CurrentGoal() string {
	goal, _ := p.goals.Current()
	return goal
}

// Run executes iterations until the context is cancelled or the cost guard
// halts the loop. In safe mode (interval 0) the loop idles without calling
// the model.
func (p *Planner) Run(ctx context.Context) error {
	p.logger.Info("Planner loop starting")
	for {
		settings := p.modeMgr.Settings()
		if settings.IterationIntervalSec <= 0 {
			// Safe mode: stay alive, do nothing autonomous. Still beat so
			// the heartbeat probe knows the loop is parked, not dead.
			p.st.Beat()
			if !sleepCtx(ctx, 10*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if err := p.RunIteration(ctx); err != nil {
			if errors.Is(err, ErrCostStop) || errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Error("Iteration failed", "error", err)
		}

		interval := time.Duration(settings.IterationIntervalSec) * time.Second
		if !sleepCtx(ctx, interval) {
			return ctx.Err()
		}
	}
}

// RunIteration performs one full think→act cycle.
func (p *Planner) RunIteration(ctx context.Context) error {
	p.iteration++
	p.st.Beat()

	// 1. Drain external events first so user input wins over autonomy.
	for _, ev := range p.in.Drain() {
		p.handleEvent(ctx, ev)
	}

	// 2. Budget gate.
	switch level := p.guard.Check(); level {
	case cost.LevelStop:
		th := p.guard.Thresholds()
		p.notifier.Event(notify.KindCostStop, narrator.CostAlert(level, p.guard.TodayCost(), th.Stop))
		p.st.WriteAIState(store.AIStateIdle, "cost stop")
		return ErrCostStop
	case cost.LevelAlert, cost.LevelWarning:
		th := p.guard.Thresholds()
		p.notifier.Event(notify.KindCostWarning, narrator.CostAlert(level, p.guard.TodayCost(), th.Stop))
	}

	// 3. Build context.
	goal, _ := p.goals.Current()
	previews := make([]string, 0, 3)
	for _, rec := range p.mem.Recent(3) {
		if preview := p.mem.Preview(rec.Filename, 300); preview != "" {
			previews = append(previews, preview)
		}
	}
	userMsg := buildContext(time.Now(), goal, p.iteration, p.mem.DiaryTail(20), p.mem.Summary(), previews)

	// 4. Think.
	p.st.WriteAIState(store.AIStatePlanning, goal)
	result, err := p.client.Complete(ctx, llm.CompletionRequest{
		Model:       p.cfg.LLM.Model,
		System:      plannerSystemPrompt,
		User:        userMsg,
		Temperature: p.cfg.LLM.Temperature,
		MaxTokens:   p.cfg.LLM.MaxTokens,
	})
	if err != nil {
		iterationFailures.WithLabelValues("llm").Inc()
		p.errorStreak++
		if p.errorStreak >= 3 {
			p.notifier.Event(notify.KindError, fmt.Sprintf("思考が続けて失敗している: %v", err))
		}
		p.st.WriteAIState(store.AIStateError, "llm error")
		return fmt.Errorf("llm call: %w", err)
	}
	p.errorStreak = 0
	p.guard.Record(p.cfg.LLM.Model, result.InputTokens, result.OutputTokens)

	// 5. Parse.
	plan, err := ParsePlan(result.Text)
	if err != nil {
		iterationFailures.WithLabelValues("parse").Inc()
		p.logger.Warn("Malformed plan, skipping iteration", "error", err)
		p.st.WriteAIState(store.AIStateIdle, "")
		return nil
	}

	// 6. Act.
	p.applyPlan(ctx, plan)

	p.st.Beat()
	p.st.WriteAIState(store.AIStateIdle, "")
	iterationsTotal.Inc()
	return nil
}

func (p *Planner) handleEvent(ctx context.Context, ev inbox.Event) {
	p.st.TouchUser()
	switch ev.Type {
	case inbox.TypeQuery:
		answer, err := p.quick.Answer(ctx, ev.Text)
		if err != nil {
			p.logger.Error("Quick answer failed", "error", err)
			answer = "ごめん、今すぐには答えられない。後で調べておくね。"
		}
		p.notifier.Event(notify.KindResponse, answer)
	case inbox.TypeGoal:
		p.UpdateGoal(ev.Text, "user")
	default:
		p.logger.Warn("Unknown inbox event type", "type", ev.Type)
	}
}

func (p *Planner) applyPlan(ctx context.Context, plan *Plan) {
	goalBefore, _ := p.goals.Current()

	if len(plan.Cmd) > 0 {
		p.st.WriteAIState(store.AIStateActing, firstN(plan.Cmd[0], 30))
		for _, command := range plan.Cmd {
			res := p.exec.Run(ctx, command)
			status := "ok"
			if !res.Success {
				status = res.Failure
				if status == "" {
					status = fmt.Sprintf("exit %d", res.ReturnCode)
				}
				iterationFailures.WithLabelValues("cmd").Inc()
			}
			p.st.LogEvent(store.LogEngine, "cmd: "+firstN(command, 80), status)
			p.notifier.ExecLog(fmt.Sprintf("$ %s → %s", firstN(command, 60), status))
		}
	}

	for _, mw := range plan.MemoryWrite {
		if mw.Filename == "" {
			continue
		}
		if err := p.mem.Write(mw.Filename, mw.Content); err != nil {
			p.logger.Error("Memory write failed", "file", mw.Filename, "error", err)
		}
	}

	if plan.DiaryAppend != "" {
		if err := p.mem.AppendDiary(plan.DiaryAppend); err != nil {
			p.logger.Error("Diary append failed", "error", err)
		}
	}

	if p.goals.AdoptLLMGoal(plan.NextGoal, plan.Say, p.cfg.LLM.CompletionMarkers) {
		p.st.LogEvent(store.LogNavigation, "goal set: "+plan.NextGoal, "source=llm")
	}

	if plan.SelfImprove.Enabled {
		report, err := p.modifier.Analyze(ctx, plan.SelfImprove.TargetFile, plan.SelfImprove.Request)
		if err != nil {
			p.logger.Error("Self-improve analysis failed", "error", err)
		} else if report != "" {
			if err := p.mem.Write(fmt.Sprintf("改善_%s.txt", time.Now().Format("20060102_150405")), report); err != nil {
				p.logger.Error("Failed to store self-improve report", "error", err)
			}
		}
	}

	if plan.Say != "" {
		p.st.LogEvent(store.LogEngine, firstN(plan.Say, 120), "")
		p.notifier.ExecLog(plan.Say)
	}

	if goalAfter, _ := p.goals.Current(); goalAfter != goalBefore {
		p.notifier.Event(notify.KindStatus, narrator.GoalChange(goalAfter, "llm"))
	}
}

func firstN(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n]) + "…"
	}
	return s
}

// sleepCtx sleeps for d, returning false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package sched

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/store"
)

// cachedEvent is one calendar entry kept in the cache snapshot.
type cachedEvent struct {
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// calendarCache is the snapshot written to calendar_cache.json so work-time
// checks survive network outages.
type calendarCache struct {
	FetchedAt string        `json:"fetched_at"`
	Events    []cachedEvent `json:"events"`
}

// fetchTTL bounds how often the ICS URL is hit regardless of the check
// interval.
const fetchTTL = 30 * time.Minute

// Calendar resolves "is it work time" from an ICS feed, with an on-disk
// cache as fallback.
type Calendar struct {
	cfg        *config.SchedConfig
	st         *store.Store
	httpClient *http.Client
	logger     *slog.Logger

	cache calendarCache
}

// NewCalendar creates the resolver. Loading the cache snapshot is best
// effort.
func NewCalendar(cfg *config.SchedConfig, st *store.Store) *Calendar {
	c := &Calendar{
		cfg:        cfg,
		st:         st,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default().With("component", "calendar"),
	}
	store.ReadSnapshot(st.CalendarCachePath(), &c.cache)
	return c
}

// Enabled reports whether an ICS URL is configured.
func (c *Calendar) Enabled() bool { return c.cfg.CalendarICSURL != "" }

// refresh fetches the ICS feed when the cache is stale. Fetch failures
// keep the previous cache.
func (c *Calendar) refresh(ctx context.Context) {
	if fetched, err := time.Parse(time.RFC3339, c.cache.FetchedAt); err == nil {
		if time.Since(fetched) < fetchTTL {
			return
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.CalendarICSURL, nil)
	if err != nil {
		c.logger.Error("Calendar request build failed", "error", err)
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Calendar fetch failed, using cache", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Calendar fetch returned non-OK, using cache", "status", resp.Status)
		return
	}

	cal, err := ics.ParseCalendar(resp.Body)
	if err != nil {
		c.logger.Warn("Calendar parse failed, using cache", "error", err)
		return
	}

	cache := calendarCache{FetchedAt: time.Now().Format(time.RFC3339)}
	for _, ev := range cal.Events() {
		start, err := ev.GetStartAt()
		if err != nil {
			continue
		}
		end, err := ev.GetEndAt()
		if err != nil {
			end = start.Add(time.Hour)
		}
		summary := ""
		if prop := ev.GetProperty(ics.ComponentPropertySummary); prop != nil {
			summary = prop.Value
		}
		cache.Events = append(cache.Events, cachedEvent{
			Summary: summary,
			Start:   start.Format(time.RFC3339),
			End:     end.Format(time.RFC3339),
		})
	}
	c.cache = cache
	if err := store.WriteSnapshot(c.st.CalendarCachePath(), cache); err != nil {
		c.logger.Error("Failed to write calendar cache", "error", err)
	}
	c.logger.Info("Calendar refreshed", "events", len(cache.Events))
}

// IsWorkTime reports whether now falls inside the workday window and
// overlaps an event whose summary matches a work keyword.
func (c *Calendar) IsWorkTime(ctx context.Context, now time.Time) bool {
	if !c.Enabled() {
		return false
	}
	c.refresh(ctx)

	hour := now.Hour()
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	if hour < c.cfg.WorkdayStartHour || hour >= c.cfg.WorkdayEndHour {
		return false
	}

	for _, ev := range c.cache.Events {
		start, err1 := time.Parse(time.RFC3339, ev.Start)
		end, err2 := time.Parse(time.RFC3339, ev.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if now.Before(start) || !now.Before(end) {
			continue
		}
		for _, kw := range c.cfg.WorkKeywords {
			if kw != "" && strings.Contains(strings.ToLower(ev.Summary), strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

// ModeSwitcher is the slice of the mode manager the calendar hook needs.
type ModeSwitcher interface {
	Current() store.ModeSnapshot
	Switch(target, reason, source string) modes.SwitchResult
}

// CheckCalendarMode is the 5-minute task: work time wants user_first,
// off hours want autonomous. Manual overrides make the switch refuse.
func (c *Calendar) CheckCalendarMode(ctx context.Context, switcher ModeSwitcher) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	now := time.Now()
	target := config.ModeAutonomous
	reason := "off hours"
	if c.IsWorkTime(ctx, now) {
		target = config.ModeUserFirst
		reason = "work time"
	}

	current := switcher.Current().Mode
	if current == target {
		return "", nil
	}
	// Only flip between the two calendar-managed modes; leave manual
	// choices like maintenance alone.
	if current != config.ModeAutonomous && current != config.ModeUserFirst {
		return "", nil
	}

	res := switcher.Switch(target, reason, modes.SourceCalendar)
	if !res.Success {
		return fmt.Sprintf("switch to %s refused: %s", target, res.Reason), nil
	}
	return fmt.Sprintf("switched to %s (%s)", target, reason), nil
}

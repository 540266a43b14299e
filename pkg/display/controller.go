package display

import (
	"context"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/health"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/narrator"
	"github.com/bcnofne/shipos/pkg/store"
)

// Forced-state thresholds. The display loop is the one component that
// already polls everything fast, so it doubles as the trigger.
const (
	emergencyCPUTemp = 80.0
	emergencyDiskPct = 90.0
	stormCPUPercent  = 85.0
)

// slowPollEvery spaces the expensive probes (temp, disk, IPs) across the
// fast render ticks.
const slowPollEvery = 20 // ticks: 3 s at a 150 ms tick

// Controller drives the panel from state snapshots.
type Controller struct {
	cfg     *config.DisplayConfig
	st      *store.Store
	mgr     *modes.Manager
	monitor *health.Monitor
	goalFn  func() string
	sink    Sink
	logger  *slog.Logger

	mu   sync.Mutex
	tick int

	// cached slow-poll values
	cpuTemp float64
	diskPct float64
	cpuPct  float64
	lanIP   string
	tailIP  string

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the controller. The SSD1306 open is attempted once; on
// failure the log sink takes over and the panel is simply absent.
func New(cfg *config.DisplayConfig, st *store.Store, mgr *modes.Manager, monitor *health.Monitor, goalFn func() string) *Controller {
	logger := slog.Default().With("component", "display")

	var sink Sink
	if cfg.Enabled {
		var err error
		sink, err = NewSSD1306(cfg.I2CDevice, cfg.I2CAddress)
		if err != nil {
			logger.Warn("Panel unavailable, rendering to log", "error", err)
			sink = nil
		}
	}
	if sink == nil {
		sink = NewLogSink()
	}

	return &Controller{
		cfg:     cfg,
		st:      st,
		mgr:     mgr,
		monitor: monitor,
		goalFn:  goalFn,
		sink:    sink,
		logger:  logger,
	}
}

// Start shows the boot frame and launches the render loop.
func (c *Controller) Start(ctx context.Context, version string) {
	if c.cancel != nil {
		return
	}
	if err := c.sink.Render(BootFrame(version)); err != nil {
		c.logger.Error("Boot frame failed", "error", err)
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
	c.logger.Info("Display started", "tick", c.cfg.Tick.Duration)
}

// Stop halts the loop and leaves the shutdown frame on the panel. Called
// from the signal path so the frame shows even on SIGTERM.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	if err := c.sink.Render(ShutdownFrame()); err != nil {
		c.logger.Error("Shutdown frame failed", "error", err)
	}
	if err := c.sink.Close(); err != nil {
		c.logger.Error("Panel close failed", "error", err)
	}
	c.logger.Info("Display stopped")
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Tick.Duration)
	defer ticker.Stop()

	c.slowPoll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		c.tick++
		tick := c.tick
		c.mu.Unlock()

		if tick%slowPollEvery == 0 {
			c.slowPoll(ctx)
			c.checkForcedStates()
		}
		c.render(tick)
	}
}

// render composes and draws one frame.
func (c *Controller) render(tick int) {
	snap := c.mgr.Current()
	_, glyph := narrator.SailState(snap.Mode)

	in := Inputs{
		Mode:    snap.Mode,
		Glyph:   glyph,
		Goal:    c.goalFn(),
		CPUTemp: c.cpuTemp,
		DiskPct: c.diskPct,
		AIState: c.st.ReadAIState().State,
		LanIP:   c.lanIP,
		TailIP:  c.tailIP,
	}
	if dir, ok := c.st.LinePulse(time.Now(), c.cfg.PulseWindow.Duration); ok {
		in.LinePulse = dir
	}
	if samples := store.TailJSONL[health.MoodSample](c.st.MoodLogPath(), 1); len(samples) > 0 {
		in.MoodEmoji = samples[0].Emoji
	}

	if err := c.sink.Render(Scroll(Compose(in), tick)); err != nil {
		c.logger.Error("Render failed", "error", err)
	}
}

// slowPoll refreshes the values too expensive for every tick.
func (c *Controller) slowPoll(ctx context.Context) {
	if temp, err := c.monitor.CPUTemp(); err == nil {
		c.cpuTemp = temp
	}
	if usage, err := disk.Usage("/"); err == nil {
		c.diskPct = usage.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		c.cpuPct = pct[0]
	}
	c.lanIP = lanIPv4()
	c.tailIP = tailscaleIPv4(ctx)
}

// checkForcedStates forces the emergency/storm transient modes from the
// hardware readings and clears them when the readings recover.
func (c *Controller) checkForcedStates() {
	mode := c.mgr.Current().Mode

	switch {
	case c.cpuTemp >= emergencyCPUTemp || c.diskPct >= emergencyDiskPct:
		if mode != config.ModeEmergency {
			c.mgr.ForceTransient(config.ModeEmergency, "hardware limits exceeded", modes.SourceHealth)
		}
	case c.cpuPct >= stormCPUPercent:
		if mode != config.ModeEmergency && mode != config.ModeStorm {
			c.mgr.ForceTransient(config.ModeStorm, "cpu load high", modes.SourceHealth)
		}
	default:
		if mode == config.ModeEmergency || mode == config.ModeStorm {
			c.mgr.ClearTransient("readings recovered", modes.SourceHealth)
		}
	}
}

// lanIPv4 returns the first non-loopback, non-tailscale IPv4 address.
func lanIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		// Tailscale's CGNAT range shows up on its own row.
		if ip4[0] == 100 {
			continue
		}
		return ip4.String()
	}
	return ""
}

// tailscaleIPv4 asks the tailscale CLI; empty means offline/absent.
func tailscaleIPv4(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "tailscale", "ip", "-4").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
}

// Package health runs the periodic host probes and rolls them up to a
// single OK/WARN/CRITICAL level, plus the deterministic mood score shown
// on the display.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

// Probe statuses, in severity order.
const (
	StatusOK       = "OK"
	StatusWarn     = "WARN"
	StatusCritical = "CRITICAL"
	StatusUnknown  = "UNKNOWN"
)

var statusRank = map[string]int{
	StatusOK:       0,
	StatusUnknown:  1,
	StatusWarn:     2,
	StatusCritical: 3,
}

var overallGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "shipos_health_overall",
	Help: "Overall health level (0 OK, 1 UNKNOWN, 2 WARN, 3 CRITICAL).",
})

// Component is one probe result.
type Component struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Value     float64 `json:"value"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
}

// Sample is one full probe sweep.
type Sample struct {
	Components []Component `json:"components"`
	Overall    string      `json:"overall"`
	Timestamp  string      `json:"timestamp"`
}

// Monitor runs the seven probes. The scheduler drives it on its tick.
type Monitor struct {
	cfg    *config.HealthConfig
	st     *store.Store
	logger *slog.Logger

	last Sample
}

// NewMonitor creates the probe runner.
func NewMonitor(cfg *config.HealthConfig, st *store.Store) *Monitor {
	return &Monitor{
		cfg:    cfg,
		st:     st,
		logger: slog.Default().With("component", "health"),
	}
}

// RunAll executes every probe, appends the sample to the history stream,
// and returns it.
func (m *Monitor) RunAll(ctx context.Context) Sample {
	now := time.Now()
	components := []Component{
		m.probeCPUTemp(),
		m.probeRAM(),
		m.probeDisk("/", "disk"),
		m.probeArchive(),
		m.probeNetwork(ctx),
		m.probeHeartbeat(now),
		m.probeService(ctx),
	}

	overall := StatusOK
	for _, c := range components {
		if statusRank[c.Status] > statusRank[overall] {
			overall = c.Status
		}
	}

	sample := Sample{
		Components: components,
		Overall:    overall,
		Timestamp:  now.Format(time.RFC3339),
	}
	m.last = sample
	overallGauge.Set(float64(statusRank[overall]))

	if err := store.AppendJSONL(m.st.HealthHistoryPath(), sample); err != nil {
		m.logger.Error("Failed to append health history", "error", err)
	}
	if overall != StatusOK {
		m.st.LogEvent(store.LogWeather, "health "+overall, alertSummary(components))
	}
	return sample
}

// Last returns the most recent sample (zero value before the first run).
func (m *Monitor) Last() Sample { return m.last }

// Alerts returns only WARN/CRITICAL components from a sample.
func Alerts(sample Sample) []Component {
	var out []Component
	for _, c := range sample.Components {
		if c.Status == StatusWarn || c.Status == StatusCritical {
			out = append(out, c)
		}
	}
	return out
}

func alertSummary(components []Component) string {
	var parts []string
	for _, c := range components {
		if c.Status == StatusWarn || c.Status == StatusCritical {
			parts = append(parts, fmt.Sprintf("%s=%s(%s)", c.Name, c.Status, c.Message))
		}
	}
	return strings.Join(parts, " ")
}

func component(name, status string, value float64, message string) Component {
	return Component{
		Name:      name,
		Status:    status,
		Value:     value,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CPUTemp reads the SoC temperature from the thermal zone (millidegrees).
func (m *Monitor) CPUTemp() (float64, error) {
	raw, err := os.ReadFile(m.cfg.ThermalZone)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parsing thermal zone: %w", err)
	}
	return float64(milli) / 1000, nil
}

func (m *Monitor) probeCPUTemp() Component {
	temp, err := m.CPUTemp()
	if err != nil {
		return component("cpu_temp", StatusUnknown, 0, err.Error())
	}
	status := StatusOK
	switch {
	case temp >= m.cfg.CPUTempCrit:
		status = StatusCritical
	case temp >= m.cfg.CPUTempWarn:
		status = StatusWarn
	}
	return component("cpu_temp", status, temp, fmt.Sprintf("%.1f°C", temp))
}

func (m *Monitor) probeRAM() Component {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return component("ram", StatusUnknown, 0, err.Error())
	}
	status := StatusOK
	switch {
	case vm.UsedPercent >= m.cfg.MemCrit:
		status = StatusCritical
	case vm.UsedPercent >= m.cfg.MemWarn:
		status = StatusWarn
	}
	return component("ram", status, vm.UsedPercent, fmt.Sprintf("%.1f%%", vm.UsedPercent))
}

func (m *Monitor) probeDisk(path, name string) Component {
	usage, err := disk.Usage(path)
	if err != nil {
		return component(name, StatusUnknown, 0, err.Error())
	}
	status := StatusOK
	switch {
	case usage.UsedPercent >= m.cfg.DiskCrit:
		status = StatusCritical
	case usage.UsedPercent >= m.cfg.DiskWarn:
		status = StatusWarn
	}
	return component(name, status, usage.UsedPercent, fmt.Sprintf("%.1f%%", usage.UsedPercent))
}

func (m *Monitor) probeArchive() Component {
	info, err := os.Stat(m.cfg.ArchiveMount)
	if err != nil || !info.IsDir() {
		return component("archive", StatusWarn, 0, "archive mount missing")
	}
	return m.probeDisk(m.cfg.ArchiveMount, "archive")
}

func (m *Monitor) probeNetwork(ctx context.Context) Component {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.NetProbeAddr)
	if err != nil {
		return component("network", StatusWarn, 0, "unreachable: "+m.cfg.NetProbeAddr)
	}
	_ = conn.Close()
	return component("network", StatusOK, 1, "reachable")
}

func (m *Monitor) probeHeartbeat(now time.Time) Component {
	age, ok := m.st.HeartbeatAge(now)
	if !ok {
		return component("ai_heartbeat", StatusUnknown, 0, "no heartbeat yet")
	}
	status := StatusOK
	switch {
	case age > m.cfg.HeartbeatCrit.Duration:
		status = StatusCritical
	case age > m.cfg.HeartbeatWarn.Duration:
		status = StatusWarn
	}
	return component("ai_heartbeat", status, age.Seconds(), fmt.Sprintf("age %s", age.Round(time.Second)))
}

func (m *Monitor) probeService(ctx context.Context) Component {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "systemctl", "is-active", m.cfg.ServiceUnit).Output()
	state := strings.TrimSpace(string(out))
	if err != nil || state != "active" {
		if state == "" {
			state = "unknown"
		}
		return component("service", StatusCritical, 0, m.cfg.ServiceUnit+" "+state)
	}
	return component("service", StatusOK, 1, "active")
}

// StatusText renders a chat-friendly summary of a sample.
func StatusText(sample Sample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "健康状態: %s\n", sample.Overall)
	for _, c := range sample.Components {
		fmt.Fprintf(&b, "- %s: %s %s\n", c.Name, c.Status, c.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

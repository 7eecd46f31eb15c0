// Package system reports host, CPU and memory details for the
// capability report and the system API endpoint.
package system

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jmylchreest/slidereel/pkg/format"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Info is a point-in-time snapshot of the host.
type Info struct {
	Hostname      string    `json:"hostname,omitempty"`
	OS            string    `json:"os"`
	Arch          string    `json:"arch"`
	Platform      string    `json:"platform,omitempty"`
	KernelVersion string    `json:"kernel_version,omitempty"`
	CPUModel      string    `json:"cpu_model,omitempty"`
	CPUCores      int       `json:"cpu_cores"`
	CPUPercent    float64   `json:"cpu_percent,omitempty"`
	Load1         float64   `json:"load_1m,omitempty"`
	Load5         float64   `json:"load_5m,omitempty"`
	Load15        float64   `json:"load_15m,omitempty"`
	MemoryTotal   uint64    `json:"memory_total_bytes"`
	MemoryUsed    uint64    `json:"memory_used_bytes"`
	MemoryPercent float64   `json:"memory_percent"`
	UptimeSeconds int64     `json:"uptime_seconds,omitempty"`
	GoVersion     string    `json:"go_version"`
	PID           int       `json:"pid"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Summary renders a one-line host description for logs and the probe
// report, like "Apple M2 Pro, 10 cores, 16.0 GB".
func (i Info) Summary() string {
	parts := make([]string, 0, 3)
	if i.CPUModel != "" {
		parts = append(parts, i.CPUModel)
	}
	if i.CPUCores > 0 {
		parts = append(parts, fmt.Sprintf("%d cores", i.CPUCores))
	}
	if i.MemoryTotal > 0 {
		parts = append(parts, format.Bytes(int64(i.MemoryTotal)))
	}
	if len(parts) == 0 {
		return i.OS + "/" + i.Arch
	}
	return strings.Join(parts, ", ")
}

// Service collects host information.
type Service struct {
	hostname  string
	startTime time.Time
}

// New creates a system info service.
func New() *Service {
	hostname, _ := os.Hostname()
	return &Service{
		hostname:  hostname,
		startTime: time.Now(),
	}
}

// Collect gathers a best-effort snapshot. Probes that fail leave their
// fields zero rather than failing the call.
func (s *Service) Collect(ctx context.Context) Info {
	info := Info{
		Hostname:    s.hostname,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		CPUCores:    runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		PID:         os.Getpid(),
		CollectedAt: time.Now(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		info.Platform = strings.TrimSpace(hostInfo.Platform + " " + hostInfo.PlatformVersion)
		info.KernelVersion = hostInfo.KernelVersion
		info.UptimeSeconds = int64(hostInfo.Uptime)
	}

	if cpuInfos, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfos) > 0 {
		info.CPUModel = strings.TrimSpace(cpuInfos[0].ModelName)
	}

	if counts, err := cpu.CountsWithContext(ctx, true); err == nil && counts > 0 {
		info.CPUCores = counts
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		info.Load1 = loadAvg.Load1
		info.Load5 = loadAvg.Load5
		info.Load15 = loadAvg.Load15
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = memInfo.Total
		info.MemoryUsed = memInfo.Used
		info.MemoryPercent = memInfo.UsedPercent
	}

	return info
}

// Uptime returns how long this process has been serving.
func (s *Service) Uptime() time.Duration {
	return time.Since(s.startTime)
}

package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/slidereel/internal/scheduler"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"gorm.io/gorm"
)

// HealthHandler serves the liveness and readiness probes and the full
// health report.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	runner    *scheduler.Runner
}

// NewHealthHandler creates a health handler with no dependencies wired.
// The probes degrade gracefully until WithDB and WithRunner are called.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB wires the database so readiness and the health report can ping it.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithRunner wires the job runner so its state shows up in the report.
func (h *HealthHandler) WithRunner(runner *scheduler.Runner) *HealthHandler {
	h.runner = runner
	return h
}

// Register mounts the probe and health routes on the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Description: "Answers ok for as long as the process can serve requests",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      http.MethodGet,
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "Answers ready once the database responds to a ping",
		Tags:        []string{"System"},
	}, h.GetReadyz)

	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health report",
		Description: "Full health report with host load, memory and database pool metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// LivezResponse is the liveness probe body.
type LivezResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body LivezResponse
}

// GetLivez answers ok while the process is running.
func (h *HealthHandler) GetLivez(ctx context.Context, input *LivezInput) (*LivezOutput, error) {
	return &LivezOutput{
		Body: LivezResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// ReadyzResponse is the readiness probe body.
type ReadyzResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// ReadyzInput is the input for the readiness probe.
type ReadyzInput struct{}

// ReadyzOutput is the output for the readiness probe.
type ReadyzOutput struct {
	Body ReadyzResponse
}

// GetReadyz reports whether the service can take traffic. Only the
// database gates readiness; a stopped runner still serves reads.
func (h *HealthHandler) GetReadyz(ctx context.Context, input *ReadyzInput) (*ReadyzOutput, error) {
	components := map[string]string{
		"database":  "not_configured",
		"scheduler": "ok",
	}
	ready := false

	if h.db != nil {
		components["database"] = "ok"
		ready = true
		if sqlDB, err := h.db.DB(); err != nil {
			components["database"] = "error"
			ready = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			components["database"] = "error"
			ready = false
		}
	}

	if h.runner != nil && !h.runner.Status(ctx).Running {
		components["scheduler"] = "stopped"
	}

	status := "ready"
	if !ready {
		status = "not_ready"
	}

	return &ReadyzOutput{
		Body: ReadyzResponse{
			Status:     status,
			Components: components,
		},
	}, nil
}

// CPUInfo reports load averages against the core count.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// ProcessMemoryInfo reports memory held by this process and its
// children. The children are the ffmpeg encodes the worker spawns,
// which usually dwarf the server itself.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// MemoryInfo reports host and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// DatabaseHealth reports pool usage and ping latency.
type DatabaseHealth struct {
	Status                 string  `json:"status"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ResponseTimeStatus     string  `json:"response_time_status"`
}

// SchedulerHealth reports the runner state and queue depth.
type SchedulerHealth struct {
	Status      string `json:"status"`
	PendingJobs int64  `json:"pending_jobs"`
}

// HealthComponents groups per-component health.
type HealthComponents struct {
	Database  DatabaseHealth  `json:"database"`
	Scheduler SchedulerHealth `json:"scheduler"`
}

// HealthResponse is the full health report body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks"`
}

// HealthInput is the input for the health report endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health report endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth assembles the full health report.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	uptime := time.Since(h.startTime)
	dbHealth := h.databaseHealth(ctx)
	schedHealth := h.schedulerHealth(ctx)

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       cpuSnapshot(),
			Memory:        memorySnapshot(),
			Components:    HealthComponents{Database: dbHealth, Scheduler: schedHealth},
			Checks: map[string]string{
				"database":  dbHealth.Status,
				"scheduler": schedHealth.Status,
			},
		},
	}, nil
}

// mib converts a byte count to mebibytes for the report fields.
func mib(n uint64) float64 {
	return float64(n) / (1 << 20)
}

func cpuSnapshot() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	avg, err := load.Avg()
	if err != nil || avg == nil {
		return info
	}
	info.Load1Min = avg.Load1
	info.Load5Min = avg.Load5
	info.Load15Min = avg.Load15
	if info.Cores > 0 {
		info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
	}
	return info
}

func memorySnapshot() MemoryInfo {
	var info MemoryInfo

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMemoryMB = mib(vm.Total)
		info.UsedMemoryMB = mib(vm.Used)
		info.FreeMemoryMB = mib(vm.Free)
		info.AvailableMemoryMB = mib(vm.Available)
	}
	if swap, err := mem.SwapMemory(); err == nil && swap != nil {
		info.SwapTotalMB = mib(swap.Total)
		info.SwapUsedMB = mib(swap.Used)
	}
	info.ProcessMemory = processTreeMemory(info.TotalMemoryMB)
	return info
}

// processTreeMemory sums RSS across this process and its children. The
// percentage covers the whole tree since the encodes, not the server,
// are what can exhaust the host.
func processTreeMemory(systemTotalMB float64) ProcessMemoryInfo {
	var info ProcessMemoryInfo

	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if rss, err := self.MemoryInfo(); err == nil && rss != nil {
		info.MainProcessMB = mib(rss.RSS)
	}
	if children, err := self.Children(); err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			crss, err := child.MemoryInfo()
			if err != nil || crss == nil {
				continue
			}
			info.ChildProcessesMB += mib(crss.RSS)
		}
	}

	info.TotalProcessTreeMB = info.MainProcessMB + info.ChildProcessesMB
	if systemTotalMB > 0 {
		info.PercentageOfSystem = info.TotalProcessTreeMB / systemTotalMB * 100
	}
	return info
}

// slowPingMS marks a database ping as slow in the report.
const slowPingMS = 100

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "unknown", ResponseTimeStatus: "healthy"}
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return DatabaseHealth{Status: "error", ResponseTimeStatus: "error"}
	}

	pool := sqlDB.Stats()
	health := DatabaseHealth{
		Status:             "ok",
		ResponseTimeStatus: "healthy",
		ConnectionPoolSize: pool.MaxOpenConnections,
		ActiveConnections:  pool.InUse,
		IdleConnections:    pool.Idle,
	}
	if pool.MaxOpenConnections > 0 {
		health.PoolUtilizationPercent = float64(pool.InUse) / float64(pool.MaxOpenConnections) * 100
	}

	begin := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(begin).Microseconds()) / 1000

	switch {
	case err != nil:
		health.Status = "error"
		health.ResponseTimeStatus = "error"
	case health.ResponseTimeMS > slowPingMS:
		health.ResponseTimeStatus = "slow"
	}
	return health
}

func (h *HealthHandler) schedulerHealth(ctx context.Context) SchedulerHealth {
	if h.runner == nil {
		return SchedulerHealth{Status: "unknown"}
	}

	status := h.runner.Status(ctx)
	health := SchedulerHealth{
		Status:      "ok",
		PendingJobs: status.PendingJobs,
	}
	if !status.Running {
		health.Status = "stopped"
	}
	return health
}

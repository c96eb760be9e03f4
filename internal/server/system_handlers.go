package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/fractal/internal/scheduler"
	"github.com/aristath/fractal/internal/series"
)

// SystemHandlers serves health and system status endpoints.
type SystemHandlers struct {
	sched     *scheduler.Scheduler
	store     *series.Store
	dataDir   string
	startedAt time.Time
	log       zerolog.Logger
}

func NewSystemHandlers(sched *scheduler.Scheduler, store *series.Store, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		sched:     sched,
		store:     store,
		dataDir:   dataDir,
		startedAt: time.Now().UTC(),
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
}

// HandleHealth is the liveness endpoint.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// systemStatusResponse is the full system status payload.
type systemStatusResponse struct {
	Status        string                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	MemoryUsedMB  float64               `json:"memory_used_mb"`
	DataSizeMB    float64               `json:"data_size_mb"`
	SymbolCount   int                   `json:"symbol_count"`
	Jobs          []scheduler.JobStatus `json:"jobs"`
}

// HandleSystemStatus reports process and data health.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent, memUsedMB := h.systemStats()

	symbolCount := 0
	if symbols, err := h.store.Symbols(); err == nil {
		symbolCount = len(symbols)
	}

	h.respondJSON(w, http.StatusOK, systemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		MemoryUsedMB:  memUsedMB,
		DataSizeMB:    h.dirSizeMB(h.dataDir),
		SymbolCount:   symbolCount,
		Jobs:          h.sched.Statuses(),
	})
}

// HandleJobsStatus reports the last outcome of every scheduled job.
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.sched.Statuses()})
}

// systemStats samples CPU and memory usage. Failures degrade to zeros.
func (h *SystemHandlers) systemStats() (cpuPercent, memPercent, memUsedMB float64) {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
		memUsedMB = float64(vm.Used) / 1024 / 1024
	}
	return cpuPercent, memPercent, memUsedMB
}

func (h *SystemHandlers) dirSizeMB(dir string) float64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return float64(total) / 1024 / 1024
}

func (h *SystemHandlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

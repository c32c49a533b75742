package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/docker/docker/api/types"
	"zeroone.host/internal/core/domain"
)

// ContainerStats reads one resource snapshot: memory in MB and CPU as a
// percentage of one core times the online core count, both rounded to one
// decimal.
func (e *Engine) ContainerStats(ctx context.Context, containerID string) (domain.StatsSnapshot, error) {
	resp, err := e.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return domain.StatsSnapshot{}, fmt.Errorf("fetching container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return domain.StatsSnapshot{}, fmt.Errorf("decoding container stats: %w", err)
	}

	memoryMb := float64(stats.MemoryStats.Usage) / 1024 / 1024

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	cores := float64(stats.CPUStats.OnlineCPUs)
	if cores == 0 {
		cores = 1
	}

	return domain.StatsSnapshot{
		MemoryMb:   round1(memoryMb),
		CPUPercent: round1(cpuPercent(cpuDelta, systemDelta, cores)),
		ReadAt:     time.Now(),
	}, nil
}

// cpuPercent normalizes the usage delta against the system-wide delta. A
// zero system delta (first sample) yields 0, never a division by zero.
func cpuPercent(cpuDelta, systemDelta, cores float64) float64 {
	if systemDelta <= 0 || cpuDelta < 0 {
		return 0
	}
	return cpuDelta / systemDelta * cores * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

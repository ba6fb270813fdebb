package monitoring

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

type ResourceSampler interface {
	Sample(ctx context.Context) (ResourceMetrics, error)
}

// ProcessSampler reads CPU and memory usage of the running process.
type ProcessSampler struct {
	proc *process.Process
}

func NewProcessSampler() (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open process: %w", err)
	}
	return &ProcessSampler{proc: proc}, nil
}

func (s *ProcessSampler) Sample(ctx context.Context) (ResourceMetrics, error) {
	res := ResourceMetrics{Goroutines: runtime.NumGoroutine()}

	cpu, err := s.proc.CPUPercentWithContext(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	res.CPUPercent = round2(cpu)

	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read memory info: %w", err)
	}
	res.MemoryRSSBytes = mem.RSS

	memPercent, err := s.proc.MemoryPercentWithContext(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read memory percent: %w", err)
	}
	res.MemoryPercent = round2(float64(memPercent))

	return res, nil
}

// runtimeSampler is used when the process cannot be inspected.
type runtimeSampler struct{}

func (runtimeSampler) Sample(context.Context) (ResourceMetrics, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ResourceMetrics{
		Goroutines:     runtime.NumGoroutine(),
		MemoryRSSBytes: ms.Sys,
	}, nil
}

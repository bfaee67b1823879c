package uploads

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryMonitor refuses upload admission when system memory utilization is
// above the configured high watermark. A probe failure admits: the monitor
// is a load shedder, not a correctness gate.
type MemoryMonitor struct {
	highWatermarkPct float64
	probe            func(context.Context) (*mem.VirtualMemoryStat, error)
}

func NewMemoryMonitor(highWatermarkPct float64) *MemoryMonitor {
	return &MemoryMonitor{
		highWatermarkPct: highWatermarkPct,
		probe:            mem.VirtualMemoryWithContext,
	}
}

// Admit returns a human-readable refusal reason, or "" to admit.
func (m *MemoryMonitor) Admit(ctx context.Context) string {
	stat, err := m.probe(ctx)
	if err != nil {
		return ""
	}
	if stat.UsedPercent > m.highWatermarkPct {
		return fmt.Sprintf("memory pressure: %.1f%% used (watermark %.0f%%)",
			stat.UsedPercent, m.highWatermarkPct)
	}
	return ""
}

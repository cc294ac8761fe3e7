package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"community-hub/observability"
)

// HeartbeatWorker samples process-level health and publishes it for the
// stats endpoint.
type HeartbeatWorker struct {
	log      *slog.Logger
	procChan chan<- observability.ProcessStats
	interval time.Duration
}

func NewHeartbeatWorker(
	log *slog.Logger,
	procChan chan<- observability.ProcessStats,
	interval time.Duration,
) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, procChan: procChan, interval: interval}
}

// Run executes the main loop of the worker, sending health metrics (CPU, RAM, Status) on every tick.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting relay heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			select {
			case w.procChan <- observability.ProcessStats{RSSBytes: rss, CPUPercent: cpu, Status: status}:
			default:
				w.log.Debug("Process stats sample lost")
			}
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}

package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// RecentMessageInfo is one relayed message summary kept for the stats view.
type RecentMessageInfo struct {
	ID        string `json:"id"`
	Community string `json:"community"`
	Author    string `json:"author"`
	Censored  bool   `json:"censored"`
	Timestamp string `json:"timestamp"`
}

// MonitoringStats aggregates the relay metrics served by the stats endpoint.
type MonitoringStats struct {
	// --- TRAFFIC METRICS ---
	MessagesIn        uint64  `json:"messages_in"`
	DeliveriesOut     uint64  `json:"deliveries_out"`
	DroppedDeliveries uint64  `json:"dropped_deliveries"`
	CensoredMessages  uint64  `json:"censored_messages"`
	IndexedMessages   uint64  `json:"indexed_messages"`
	InboundRate       float64 `json:"inbound_rate"`  // msg/s
	DeliveryRate      float64 `json:"delivery_rate"` // msg/s

	// --- SESSION METRICS ---
	ActiveSessions    int `json:"active_sessions"`
	JoinedCommunities int `json:"joined_communities"`

	// --- SYSTEM METRICS ---
	AllocMemMb        uint64              `json:"alloc_mem_mb"`
	NumGC             uint32              `json:"num_gc"`
	ProcessRSSMb      uint64              `json:"process_rss_mb"`
	ProcessCPUPercent float64             `json:"process_cpu_percent"`
	ProcessStatus     string              `json:"process_status"`
	RecentMessages    []RecentMessageInfo `json:"recent_messages"`
}

// ProcessStats is one sample of process-level health collected by the
// heartbeat worker.
type ProcessStats struct {
	RSSBytes   uint64
	CPUPercent float64
	Status     string
}

const recentMessagesKept = 20

// MonitoringManager owns the realtime relay telemetry. Counters are atomic
// so the hot path never takes the mutex; the snapshot served to readers is
// recomputed on a ticker.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	// Cumulative counters.
	MessagesIn        uint64
	DeliveriesOut     uint64
	DroppedDeliveries uint64
	CensoredMessages  uint64
	IndexedMessages   uint64

	// Window counters, swapped to zero at each rate computation.
	inWindow  uint64
	outWindow uint64
	LastCheck time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{
		log:       log,
		LastCheck: time.Now(),
		latestStats: MonitoringStats{
			RecentMessages: make([]RecentMessageInfo, 0),
		},
	}
}

func (mm *MonitoringManager) IncrMessageIn() {
	atomic.AddUint64(&mm.MessagesIn, 1)
	atomic.AddUint64(&mm.inWindow, 1)
}

// IncrDeliveries adds n fan-out deliveries (one inbound message reaching n
// sessions counts n).
func (mm *MonitoringManager) IncrDeliveries(n uint64) {
	atomic.AddUint64(&mm.DeliveriesOut, n)
	atomic.AddUint64(&mm.outWindow, n)
}

func (mm *MonitoringManager) IncrDroppedDelivery() {
	atomic.AddUint64(&mm.DroppedDeliveries, 1)
}

func (mm *MonitoringManager) IncrCensored() {
	atomic.AddUint64(&mm.CensoredMessages, 1)
}

func (mm *MonitoringManager) IncrIndexed() {
	atomic.AddUint64(&mm.IndexedMessages, 1)
}

// AddRecent records a relayed message summary at the head of the recent
// list, keeping only the last few.
func (mm *MonitoringManager) AddRecent(id, community, author string, censored bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	info := RecentMessageInfo{
		ID:        id,
		Community: community,
		Author:    author,
		Censored:  censored,
		Timestamp: time.Now().Format("15:04:05"),
	}

	mm.latestStats.RecentMessages = append([]RecentMessageInfo{info}, mm.latestStats.RecentMessages...)
	if len(mm.latestStats.RecentMessages) > recentMessagesKept {
		mm.latestStats.RecentMessages = mm.latestStats.RecentMessages[:recentMessagesKept]
	}
}

// UpdateSessions refreshes the session gauges. Called by the registry on
// subscribe and unsubscribe.
func (mm *MonitoringManager) UpdateSessions(sessions, communities int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.ActiveSessions = sessions
	mm.latestStats.JoinedCommunities = communities
}

// Listen recomputes the snapshot every second and merges process samples
// arriving from the heartbeat worker, until ctx ends.
func (mm *MonitoringManager) Listen(ctx context.Context, procChan <-chan ProcessStats) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Info("🛑 Monitoring manager stopped")
			return

		case <-ticker.C:
			mm.updateStats()

		case sample, ok := <-procChan:
			if !ok {
				mm.log.Info("📭 Process stats channel closed")
				return
			}
			mm.mergeProcessStats(sample)
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	duration := now.Sub(mm.LastCheck).Seconds()

	if duration > 0 {
		in := atomic.SwapUint64(&mm.inWindow, 0)
		out := atomic.SwapUint64(&mm.outWindow, 0)
		mm.latestStats.InboundRate = float64(in) / duration
		mm.latestStats.DeliveryRate = float64(out) / duration
	}
	mm.LastCheck = now

	mm.latestStats.MessagesIn = atomic.LoadUint64(&mm.MessagesIn)
	mm.latestStats.DeliveriesOut = atomic.LoadUint64(&mm.DeliveriesOut)
	mm.latestStats.DroppedDeliveries = atomic.LoadUint64(&mm.DroppedDeliveries)
	mm.latestStats.CensoredMessages = atomic.LoadUint64(&mm.CensoredMessages)
	mm.latestStats.IndexedMessages = atomic.LoadUint64(&mm.IndexedMessages)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC

	mm.log.Debug("📊 Stats refreshed",
		"messages_in", mm.latestStats.MessagesIn,
		"deliveries_out", mm.latestStats.DeliveriesOut,
		"inbound_rate", mm.latestStats.InboundRate,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

func (mm *MonitoringManager) mergeProcessStats(sample ProcessStats) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.ProcessRSSMb = sample.RSSBytes / 1024 / 1024
	mm.latestStats.ProcessCPUPercent = sample.CPUPercent
	mm.latestStats.ProcessStatus = sample.Status
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}

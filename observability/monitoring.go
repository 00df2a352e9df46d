// Package observability aggregates live counters of the messaging core
// and a snapshot of process/host health for the /stats endpoint.
package observability

import (
	"context"
	"log/slog"
	goruntime "runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"ajar-messaging/domain/event"
)

// Stats is the JSON snapshot served on /stats.
type Stats struct {
	// --- MESSAGING METRICS ---
	MessagesPosted    uint64 `json:"messages_posted"`
	Departures        uint64 `json:"departures"`
	SendFailures      uint64 `json:"send_failures"`
	ActiveConnections int64  `json:"active_connections"`
	Rooms             int    `json:"rooms"`

	// --- SYSTEM METRICS ---
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	AllocMemMb     uint64  `json:"alloc_mem_mb"`
	NumGC          uint32  `json:"num_gc"`
	HostMemPercent float64 `json:"host_mem_percent"`
	HostCPUPercent float64 `json:"host_cpu_percent"`
}

// Monitor counts messaging activity. It consumes domain events like any
// other sink and additionally exposes connection hooks for the gateway.
type Monitor struct {
	log       *slog.Logger
	startedAt time.Time

	messagesPosted    atomic.Uint64
	departures        atomic.Uint64
	sendFailures      atomic.Uint64
	activeConnections atomic.Int64

	// roomCount is polled lazily, the registry owns the truth
	roomCount func() int
}

func NewMonitor(log *slog.Logger, roomCount func() int) *Monitor {
	return &Monitor{log: log, startedAt: time.Now().UTC(), roomCount: roomCount}
}

// Consume implements the event sink contract.
func (m *Monitor) Consume(_ context.Context, e event.DomainEvent) error {
	switch e.(type) {
	case event.MessagePosted:
		m.messagesPosted.Add(1)
	case event.MemberLeft:
		m.departures.Add(1)
	case event.DeliveryFailed:
		m.sendFailures.Add(1)
	}
	return nil
}

func (m *Monitor) ConnectionOpened() { m.activeConnections.Add(1) }
func (m *Monitor) ConnectionClosed() { m.activeConnections.Add(-1) }

// Snapshot collects the current counters plus process and host metrics.
// Host probes are best-effort: a failing probe leaves its field at zero
// rather than failing the snapshot.
func (m *Monitor) Snapshot() Stats {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)

	stats := Stats{
		MessagesPosted:    m.messagesPosted.Load(),
		Departures:        m.departures.Load(),
		SendFailures:      m.sendFailures.Load(),
		ActiveConnections: m.activeConnections.Load(),
		UptimeSeconds:     int64(time.Since(m.startedAt).Seconds()),
		Goroutines:        goruntime.NumGoroutine(),
		AllocMemMb:        ms.Alloc / (1 << 20),
		NumGC:             ms.NumGC,
	}
	if m.roomCount != nil {
		stats.Rooms = m.roomCount()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemPercent = vm.UsedPercent
	} else {
		m.log.Debug("host memory probe failed", "error", err)
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.HostCPUPercent = percents[0]
	} else if err != nil {
		m.log.Debug("host cpu probe failed", "error", err)
	}
	return stats
}

// Package util provides shared logging and traffic statistics.
package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide packet/peer counter.
var Stats = &stats{}

type stats struct {
	PeersJoined atomic.Int64 // cumulative count of connections that reached Connected
	PeersLeft   atomic.Int64 // cumulative count of connections that reached a terminal state
	PacketsSent atomic.Int64 // datagrams accepted by the transport
	PacketsRecv atomic.Int64 // datagrams moved into the inbound queue
	BytesSent   atomic.Int64
	BytesRecv   atomic.Int64
	SendErrors  atomic.Int64 // per-destination sends the transport rejected
}

func (s *stats) AddPeer()      { s.PeersJoined.Add(1) }
func (s *stats) RemovePeer()   { s.PeersLeft.Add(1) }
func (s *stats) AddSendError() { s.SendErrors.Add(1) }

func (s *stats) AddSent(n int) {
	s.PacketsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PeersJoined, PeersLeft   int64
	PacketsSent, PacketsRecv int64
	BytesSent, BytesRecv     int64
	SendErrors               int64
}

// Snapshot reads every counter.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		PeersJoined: s.PeersJoined.Load(),
		PeersLeft:   s.PeersLeft.Load(),
		PacketsSent: s.PacketsSent.Load(),
		PacketsRecv: s.PacketsRecv.Load(),
		BytesSent:   s.BytesSent.Load(),
		BytesRecv:   s.BytesRecv.Load(),
		SendErrors:  s.SendErrors.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often StartStatsReporter samples the counters.
const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs traffic statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if line, ok := formatDelta(prev, cur, reportInterval); ok {
					pterm.DefaultLogger.Info(line)
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatDelta renders the traffic between two snapshots. It reports false
// when nothing worth logging happened.
func formatDelta(prev, cur Snapshot, window time.Duration) (string, bool) {
	secs := window.Seconds()
	outS := float64(cur.BytesSent-prev.BytesSent) / secs
	inS := float64(cur.BytesRecv-prev.BytesRecv) / secs
	joined := cur.PeersJoined - prev.PeersJoined
	left := cur.PeersLeft - prev.PeersLeft
	errs := cur.SendErrors - prev.SendErrors

	if joined == 0 && left == 0 && errs == 0 && inS <= 10 && outS <= 10 {
		return "", false
	}

	return fmt.Sprintf("In: %s/s | Out: %s/s | Peers: %2d↑ %2d↓ | Send errors: %d",
		formatBytes(inS),
		formatBytes(outS),
		joined,
		left,
		errs,
	), true
}

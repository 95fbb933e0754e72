package server

import (
	"fmt"
	"sync"
	"time"
)

// StatsSnapshot is a consistent copy of the served counters.
type StatsSnapshot struct {
	Pages uint64
	Bytes uint64
}

// Stats counts successfully served pages. It has its own lock and is never
// touched while the worker pool's queue lock is held.
type Stats struct {
	mu    sync.Mutex
	pages uint64
	bytes uint64
}

// Update records one served page of n bytes.
func (s *Stats) Update(n int64) {
	s.mu.Lock()
	s.pages++
	s.bytes += uint64(n)
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatsSnapshot{Pages: s.pages, Bytes: s.bytes}
}

// FormatStats renders the control channel STATS reply, CRLF terminated.
// Hours are not wrapped at 24.
func FormatStats(uptime time.Duration, snap StatsSnapshot) string {
	if uptime < 0 {
		uptime = 0
	}

	ms := uptime.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	sec := ms / 1000 % 60
	ms %= 1000

	return fmt.Sprintf("Server up for %02d:%02d:%02d.%03d, served %d pages, %d bytes\r\n",
		h, m, sec, ms, snap.Pages, snap.Bytes)
}

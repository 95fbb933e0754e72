package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatStats(t *testing.T) {
	cases := []struct {
		uptime time.Duration
		snap   StatsSnapshot
		want   string
	}{
		{0, StatsSnapshot{}, "Server up for 00:00:00.000, served 0 pages, 0 bytes\r\n"},
		{
			time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond,
			StatsSnapshot{Pages: 3, Bytes: 1024},
			"Server up for 01:02:03.456, served 3 pages, 1024 bytes\r\n",
		},
		{
			100*time.Hour + 999*time.Microsecond,
			StatsSnapshot{Pages: 1, Bytes: 1},
			"Server up for 100:00:00.000, served 1 pages, 1 bytes\r\n",
		},
		{-time.Second, StatsSnapshot{}, "Server up for 00:00:00.000, served 0 pages, 0 bytes\r\n"},
	}

	for _, c := range cases {
		require.Equal(t, c.want, FormatStats(c.uptime, c.snap))
	}
}

func TestStatsUpdate(t *testing.T) {
	var s Stats

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(10)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, StatsSnapshot{Pages: 1000, Bytes: 10000}, s.Snapshot())
}

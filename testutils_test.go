// Package httpd_test provides tests for the httpd package.
//
//nolint:all
package httpd_test

import (
	"fmt"
	"sync"
	"time"
)

// waitGroupWithTimeout attempts to wait for a WaitGroup with a timeout.
// Returns true if the WaitGroup completed before timeout, false otherwise.
func waitGroupWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// eventually polls cond every few milliseconds until it holds or timeout
// passes.
func eventually(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}

	return cond()
}

// recordingLogger collects formatted log lines for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Print(v ...any)                 { l.add("INFO", "%s", fmt.Sprint(v...)) }
func (l *recordingLogger) Printf(format string, v ...any) { l.add("INFO", format, v...) }
func (l *recordingLogger) Debugf(format string, v ...any) { l.add("DEBUG", format, v...) }
func (l *recordingLogger) Infof(format string, v ...any)  { l.add("INFO", format, v...) }
func (l *recordingLogger) Warnf(format string, v ...any)  { l.add("WARN", format, v...) }
func (l *recordingLogger) Errorf(format string, v ...any) { l.add("ERROR", format, v...) }

func (l *recordingLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

package server

import (
	"net"
	"time"

	"github.com/iliastsa/httpd"
)

// Control channel commands. Each is sent as one CRLF-terminated line.
const (
	CommandStats    = "STATS"
	CommandShutdown = "SHUTDOWN"
)

// handleControl serves one control connection on the dispatch goroutine and
// reports whether the server was asked to shut down. The connection is
// always closed; malformed or unknown commands get no reply.
func (s *Server) handleControl(conn net.Conn) (shutdown bool) {
	defer func() {
		if err := conn.Close(); err != nil && !isClosedErr(err) {
			s.logf("control connection close error: %v", err)
		}
	}()

	r := httpd.NewDelimitedReader(conn, httpd.CRLF, s.config.CommandChunkSize, s.config.CommandTimeout)
	r.MaxSize = s.config.MaxCommandSize

	line, err := r.ReadMessage()
	if err != nil {
		s.metrics.commands.WithLabelValues("error").Inc()
		s.config.Logger.Debugf("control read from %v failed: %v", conn.RemoteAddr(), err)

		return false
	}

	switch cmd := string(line); cmd {
	case CommandShutdown:
		s.metrics.commands.WithLabelValues(cmd).Inc()
		s.config.Logger.Infof("shutdown requested by %v", conn.RemoteAddr())

		return true

	case CommandStats:
		s.metrics.commands.WithLabelValues(cmd).Inc()

		reply := FormatStats(time.Since(s.startedAt), s.stats.Snapshot())
		w := &deadlineWriter{conn: conn, timeout: s.config.CommandTimeout}
		if _, err := w.Write([]byte(reply)); err != nil {
			s.config.Logger.Debugf("stats reply to %v failed: %v", conn.RemoteAddr(), err)
		}

		return false

	default:
		s.metrics.commands.WithLabelValues("unknown").Inc()
		s.config.Logger.Debugf("unknown control command %q from %v", cmd, conn.RemoteAddr())

		return false
	}
}

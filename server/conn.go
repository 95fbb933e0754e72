package server

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// ServerConn represents an accepted service connection while it is owned by a
// task.
type ServerConn struct {
	ID       string    // correlation ID used in log lines.
	Conn     net.Conn  // underlying network connection.
	Accepted time.Time // when the dispatch loop received the connection.
	server   *Server   // reference to parent server.
}

func newServerConn(s *Server, conn net.Conn) *ServerConn {
	sc := &ServerConn{
		ID:       uuid.NewString(),
		Conn:     conn,
		Accepted: time.Now(),
		server:   s,
	}
	sc.init()

	return sc
}

// init configures TCP keepalive settings on the connection.
func (sc *ServerConn) init() {
	if tcpConn, ok := sc.Conn.(*net.TCPConn); ok {
		if sc.server.config.KeepAliveInterval > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(sc.server.config.KeepAliveInterval)
		}
	}
}

// Close closes the connection and logs failures other than double close.
func (sc *ServerConn) Close() {
	if err := sc.Conn.Close(); err != nil && !isClosedErr(err) {
		sc.server.logf("[%s] connection close error: %v", sc.ID, err)
	}
}

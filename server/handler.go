package server

// Handler serves one accepted service connection on a pool worker. The
// connection is closed by the server after ServeConn returns, including when
// it panics.
type Handler interface {
	ServeConn(conn *ServerConn)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as Handlers.
type HandlerFunc func(conn *ServerConn)

// ServeConn calls f with the connection.
func (f HandlerFunc) ServeConn(c *ServerConn) {
	f(c)
}

// Package httpd provides the concurrency and wire primitives of a small
// single-root HTTP file server with an administrative control channel.
//
// Features:
//   - Worker pool: NewWorkerPool starts a fixed set of workers fed by a
//     FIFO TaskQueue. Workers that die inside a task are detected and
//     respawned by Supervise; Destroy drains the queue before returning.
//   - Delimited reads: DelimitedReader assembles messages terminated by an
//     arbitrary byte sequence from bounded, deadline-guarded reads. The
//     DelimiterMatcher keeps its progress across chunks, so a delimiter may
//     span any number of reads.
//   - Packet framing: SendMessage and ReceiveMessage exchange messages as
//     fixed 1024-byte frames carrying up to 1000 payload bytes each, with
//     control modes (EOT, ACK, NO_RESULT, TIMEOUT) sent as single frames.
//   - Chunk buffers: GetBuffer and PutBuffer recycle I/O buffers by
//     power-of-two size class.
//
// Worker Pool Example:
//
//	pool, err := httpd.NewWorkerPool(4)
//	if err != nil {
//	    // handle error
//	}
//	defer pool.Destroy()
//	_ = pool.AddFunc(func() { serve(conn) }, func() { conn.Close() })
//	revived := pool.Supervise() // call periodically
//
// Delimited Read Example:
//
//	r := httpd.NewDelimitedReader(conn, httpd.HeaderEnd, 1024, 5*time.Second)
//	header, err := r.ReadMessage()
//	if errors.Is(err, httpd.ErrTimeout) {
//	    // peer too slow
//	}
//	body := r.Buffered() // bytes that followed the header
//
// The server package builds the HTTP and control-channel dispatch loop on
// top of these primitives; the client package talks to it.
package httpd

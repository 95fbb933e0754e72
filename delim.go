package httpd

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// Delimiters used on the wire.
var (
	// CRLF terminates a control-channel command line.
	CRLF = []byte("\r\n")
	// HeaderEnd terminates an HTTP header block.
	HeaderEnd = []byte("\r\n\r\n")
)

// DelimiterMatcher finds a byte sequence in a stream that arrives in chunks.
// Match progress survives across Scan calls, so a delimiter may straddle any
// number of chunk boundaries.
//
// On a mismatch the matcher falls back to the longest matched prefix that is
// still a delimiter prefix instead of starting over, so "\r\n\r\n" is found
// inside "\r\n\r\r\n\r\n".
type DelimiterMatcher struct {
	delim    []byte
	fallback []int // fallback[i]: longest proper prefix of delim[:i+1] that is also its suffix.
	progress int
}

// NewDelimiterMatcher builds a matcher for delim, which must not be empty.
func NewDelimiterMatcher(delim []byte) *DelimiterMatcher {
	if len(delim) == 0 {
		panic("httpd: empty delimiter")
	}

	d := append([]byte(nil), delim...)
	fb := make([]int, len(d))
	for i, k := 1, 0; i < len(d); i++ {
		for k > 0 && d[i] != d[k] {
			k = fb[k-1]
		}
		if d[i] == d[k] {
			k++
		}
		fb[i] = k
	}

	return &DelimiterMatcher{delim: d, fallback: fb}
}

// Scan consumes chunk and returns the offset of the byte that completes the
// delimiter, or -1 if the chunk ended first. On success the progress stays at
// len(delim) until Reset.
func (m *DelimiterMatcher) Scan(chunk []byte) int {
	n := len(m.delim)

	for i, b := range chunk {
		if m.progress == n {
			m.progress = m.fallback[n-1]
		}
		for m.progress > 0 && b != m.delim[m.progress] {
			m.progress = m.fallback[m.progress-1]
		}
		if b == m.delim[m.progress] {
			m.progress++
		}
		if m.progress == n {
			return i
		}
	}

	return -1
}

// Progress returns how many delimiter bytes are currently matched.
func (m *DelimiterMatcher) Progress() int {
	return m.progress
}

// Reset clears the match progress.
func (m *DelimiterMatcher) Reset() {
	m.progress = 0
}

// Delimiter returns the delimiter the matcher looks for.
func (m *DelimiterMatcher) Delimiter() []byte {
	return m.delim
}

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// DelimitedReader assembles delimiter-terminated messages from bounded reads.
//
// Timeout is applied to every chunk read: positive sets a fresh deadline,
// negative clears any deadline (unbounded wait) and zero leaves deadlines to
// the caller. MaxSize, when positive, caps the assembled message.
type DelimitedReader struct {
	ChunkSize int
	Timeout   time.Duration
	MaxSize   int

	r        io.Reader
	matcher  *DelimiterMatcher
	leftover []byte
}

// NewDelimitedReader wraps r.
func NewDelimitedReader(r io.Reader, delim []byte, chunkSize int, timeout time.Duration) *DelimitedReader {
	if chunkSize <= 0 {
		chunkSize = 1024
	}

	return &DelimitedReader{
		ChunkSize: chunkSize,
		Timeout:   timeout,
		r:         r,
		matcher:   NewDelimiterMatcher(delim),
	}
}

// ReadUntil reads one delimiter-terminated message from r and returns it
// without the delimiter. Bytes read past the delimiter are discarded.
func ReadUntil(r io.Reader, delim []byte, chunkSize int, timeout time.Duration) ([]byte, error) {
	return NewDelimitedReader(r, delim, chunkSize, timeout).ReadMessage()
}

// ReadMessage returns the next message without its delimiter. On failure the
// partial message is dropped and the error wraps ErrChannelClosed, ErrTimeout,
// ErrTransport or ErrMessageTooLarge.
func (d *DelimitedReader) ReadMessage() ([]byte, error) {
	d.matcher.Reset()

	var acc bytes.Buffer

	if len(d.leftover) > 0 {
		pending := d.leftover
		d.leftover = nil
		if msg, ok := d.consume(&acc, pending); ok {
			return d.checkSize(msg)
		}
	}

	chunk := GetBuffer(d.ChunkSize)
	defer PutBuffer(chunk)

	for {
		if err := d.setDeadline(); err != nil {
			return nil, classifyIOError("set read deadline", err)
		}

		n, err := d.r.Read(chunk)
		if n > 0 {
			if msg, ok := d.consume(&acc, chunk[:n]); ok {
				return d.checkSize(msg)
			}
			if d.MaxSize > 0 && acc.Len() > d.MaxSize {
				return nil, fmt.Errorf("read: %w (%d bytes)", ErrMessageTooLarge, acc.Len())
			}
		}

		if err != nil {
			return nil, classifyIOError("read", err)
		}

		if n == 0 {
			return nil, fmt.Errorf("read: %w: empty read", ErrChannelClosed)
		}
	}
}

// consume appends data up to and including the delimiter. Any bytes after
// the delimiter are kept for later reads.
func (d *DelimitedReader) consume(acc *bytes.Buffer, data []byte) ([]byte, bool) {
	end := d.matcher.Scan(data)
	if end < 0 {
		acc.Write(data)
		return nil, false
	}

	acc.Write(data[:end+1])
	if rest := data[end+1:]; len(rest) > 0 {
		d.leftover = append(d.leftover, rest...)
	}

	msg := acc.Bytes()
	return msg[:len(msg)-len(d.matcher.delim)], true
}

func (d *DelimitedReader) checkSize(msg []byte) ([]byte, error) {
	if d.MaxSize > 0 && len(msg) > d.MaxSize {
		return nil, fmt.Errorf("read: %w (%d bytes)", ErrMessageTooLarge, len(msg))
	}

	return msg, nil
}

func (d *DelimitedReader) setDeadline() error {
	dl, ok := d.r.(deadliner)
	if !ok {
		return nil
	}

	return setDeadline(dl.SetReadDeadline, d.Timeout)
}

// Buffered returns the bytes that arrived after the last delimiter and have
// not been consumed yet.
func (d *DelimitedReader) Buffered() []byte {
	return d.leftover
}

// Read drains buffered bytes first, then reads from the underlying reader
// with the configured timeout.
func (d *DelimitedReader) Read(p []byte) (int, error) {
	if len(d.leftover) > 0 {
		n := copy(p, d.leftover)
		d.leftover = d.leftover[n:]
		if len(d.leftover) == 0 {
			d.leftover = nil
		}

		return n, nil
	}

	if err := d.setDeadline(); err != nil {
		return 0, classifyIOError("set read deadline", err)
	}

	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		return n, classifyIOError("read", err)
	}

	return n, err
}

// Package client talks to an httpd server: it sends control channel
// commands and fetches files from the service port.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/iliastsa/httpd"
	"github.com/iliastsa/httpd/internal/httpmsg"
)

const (
	DefaultTimeout   = 5 * time.Second // default per-operation I/O timeout.
	DefaultChunkSize = 1024            // default read chunk for response headers.

	DefaultMaxBodySize = 256 << 20 // default largest accepted Content-Length.
)

// ErrBadResponse indicates a reply that could not be parsed.
var ErrBadResponse = errors.New("bad response")

// Client holds the I/O settings used for each request. The zero value uses
// the defaults.
type Client struct {
	Timeout   time.Duration // per read and write; negative means none.
	ChunkSize int           // read chunk for response headers.

	// MaxBodySize bounds the Content-Length Get accepts; negative means no
	// bound.
	MaxBodySize int64
}

// Response is a fetched HTTP response.
type Response struct {
	Code   int
	Reason string
	Header map[string]string // lower-cased names and values.
	Body   []byte
}

func (c *Client) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}

	return c.Timeout
}

func (c *Client) maxBodySize() int64 {
	if c.MaxBodySize == 0 {
		return DefaultMaxBodySize
	}

	return c.MaxBodySize
}

func (c *Client) chunkSize() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}

	return c.ChunkSize
}

// dial connects to addr and arranges for ctx cancellation to interrupt any
// pending I/O. The returned stop func must be called when done.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, func() bool, error) {
	var d net.Dialer
	if t := c.timeout(); t > 0 {
		d.Timeout = t
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	return conn, stop, nil
}

func (c *Client) write(conn net.Conn, p []byte) error {
	if t := c.timeout(); t > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

// Command sends one control command and returns the reply without its
// trailing CRLF. Commands that get no reply return an empty string.
func (c *Client) Command(ctx context.Context, addr, command string) (string, error) {
	conn, stop, err := c.dial(ctx, addr)
	if err != nil {
		return "", err
	}
	defer stop()
	defer conn.Close()

	if err := c.write(conn, []byte(command+"\r\n")); err != nil {
		return "", err
	}

	r := httpd.NewDelimitedReader(conn, httpd.CRLF, c.chunkSize(), c.timeout())
	reply, err := r.ReadMessage()
	if err != nil {
		// The server closes the connection without a reply for SHUTDOWN and
		// unknown commands.
		if errors.Is(err, httpd.ErrChannelClosed) {
			return "", nil
		}

		return "", fmt.Errorf("%s: %w", command, err)
	}

	return string(reply), nil
}

// Get requests target from the service port at addr. Non-200 responses are
// returned without error.
func (c *Client) Get(ctx context.Context, addr, target string) (*Response, error) {
	conn, stop, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer stop()
	defer conn.Close()

	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		host = "localhost"
	}

	req := fmt.Sprintf("GET %s %s\r\nHost: %s\r\n\r\n", target, httpmsg.Version, host)
	if err := c.write(conn, []byte(req)); err != nil {
		return nil, err
	}

	r := httpd.NewDelimitedReader(conn, httpd.HeaderEnd, c.chunkSize(), c.timeout())
	head, err := r.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	parsed, err := httpmsg.ParseResponse(head)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	n, err := parsed.ContentLength()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	if limit := c.maxBodySize(); limit >= 0 && n > limit {
		return nil, fmt.Errorf("%w: content length %d exceeds %d", ErrBadResponse, n, limit)
	}

	// The buffer grows with what actually arrives, not with the declared size.
	body, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) < n {
		return nil, fmt.Errorf("read body: %w", io.ErrUnexpectedEOF)
	}

	return &Response{
		Code:   parsed.Code,
		Reason: parsed.Reason,
		Header: parsed.Header,
		Body:   body,
	}, nil
}

// Command sends command with a default Client.
func Command(ctx context.Context, addr, command string) (string, error) {
	return (&Client{}).Command(ctx, addr, command)
}

// Get fetches target with a default Client.
func Get(ctx context.Context, addr, target string) (*Response, error) {
	return (&Client{}).Get(ctx, addr, target)
}

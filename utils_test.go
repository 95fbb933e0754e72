package httpd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyIOError(t *testing.T) {
	t.Parallel()

	require.NoError(t, classifyIOError("read", nil))

	cases := []struct {
		name string
		in   error
		want error
	}{
		{"eof", io.EOF, ErrChannelClosed},
		{"unexpected eof", io.ErrUnexpectedEOF, ErrChannelClosed},
		{"wrapped eof", fmt.Errorf("x: %w", io.EOF), ErrChannelClosed},
		{"deadline", os.ErrDeadlineExceeded, ErrTimeout},
		{"net timeout", timeoutErr{}, ErrTimeout},
		{"other", errors.New("connection reset"), ErrTransport},
		{"closed", net.ErrClosed, ErrTransport},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			err := classifyIOError("read", c.in)
			require.ErrorIs(t, err, c.want)
			require.ErrorIs(t, err, c.in)
			require.Contains(t, err.Error(), "read: ")
		})
	}
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, 0, ceilDiv(0, 1000))
	require.Equal(t, 1, ceilDiv(1, 1000))
	require.Equal(t, 1, ceilDiv(1000, 1000))
	require.Equal(t, 2, ceilDiv(1001, 1000))
	require.Equal(t, 3, ceilDiv(3000, 1000))
}

package httpd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

var (
	// ErrTimeout indicates no data or readiness arrived within the configured bound.
	ErrTimeout = errors.New("i/o timeout")

	// ErrChannelClosed indicates the peer closed the channel before a message completed.
	ErrChannelClosed = errors.New("channel closed")

	// ErrTransport indicates a read or write failure other than timeout or EOF.
	ErrTransport = errors.New("transport failure")

	// ErrProtocolViolation indicates a frame sequence that contradicts its own header.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrMessageTooLarge indicates a message exceeded the receiver's size limit.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrPoolClosed indicates the worker pool no longer accepts tasks.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrNilTask indicates a nil task was submitted.
	ErrNilTask = errors.New("nil task")

	// ErrInvalidWorkerCount indicates a worker pool was requested with no workers.
	ErrInvalidWorkerCount = errors.New("worker count must be positive")
)

// classifyIOError maps a raw read/write error onto the package taxonomy.
// The original error stays reachable through errors.Is / errors.As.
func classifyIOError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s: %w: %w", op, ErrChannelClosed, err)
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}

	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// ceilDiv returns ceil(n / d) for positive d.
func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

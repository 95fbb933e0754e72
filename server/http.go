package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/iliastsa/httpd"
	"github.com/iliastsa/httpd/internal/httpmsg"
)

// copyBufferSize is the chunk used to stream files to the client.
const copyBufferSize = 32 * 1024

// fileHandler answers GET requests with regular files below root.
type fileHandler struct {
	root    string
	config  *ServerConfig
	stats   *Stats
	metrics *Metrics
}

// ServeConn reads one request, answers it and returns. The server closes the
// connection afterwards.
func (h *fileHandler) ServeConn(sc *ServerConn) {
	r := httpd.NewDelimitedReader(sc.Conn, httpd.HeaderEnd, h.config.HTTPChunkSize, h.config.HTTPTimeout)
	r.MaxSize = h.config.MaxHeaderSize

	head, err := r.ReadMessage()
	if err != nil {
		h.config.Logger.Debugf("[%s] request read failed: %v", sc.ID, err)
		h.reject(sc, readErrorStatus(err))

		return
	}

	req, code := httpmsg.ParseRequest(head)
	if code != http.StatusOK {
		h.config.Logger.Debugf("[%s] invalid request: %d", sc.ID, code)
		h.reject(sc, code)

		return
	}

	path, code := resolveFile(h.root, req.Target)
	if code != http.StatusOK {
		h.config.Logger.Debugf("[%s] GET %s -> %d", sc.ID, req.Target, code)
		h.reject(sc, code)

		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.reject(sc, fsErrorStatus(err))

		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.reject(sc, fsErrorStatus(err))

		return
	}

	n, err := h.sendFile(sc, f, info.Size())
	if err != nil {
		h.config.Logger.Warnf("[%s] GET %s: sent %d of %d bytes: %v", sc.ID, req.Target, n, info.Size(), err)

		return
	}

	h.stats.Update(n)
	h.metrics.responses.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	h.metrics.pagesServed.Inc()
	h.metrics.bytesServed.Add(float64(n))
	h.config.Logger.Debugf("[%s] GET %s -> 200 (%d bytes)", sc.ID, req.Target, n)
}

// sendFile writes the 200 header followed by the file body. It returns the
// number of body bytes written and fails unless all size bytes went out.
func (h *fileHandler) sendFile(sc *ServerConn, f *os.File, size int64) (int64, error) {
	w := &deadlineWriter{conn: sc.Conn, timeout: h.config.WriteTimeout}

	if _, err := w.Write(httpmsg.FormatHeader(http.StatusOK, size, time.Now())); err != nil {
		return 0, err
	}

	buf := httpd.GetBuffer(copyBufferSize)
	defer httpd.PutBuffer(buf)

	// Hide WriterTo so the pooled buffer is used.
	n, err := io.CopyBuffer(w, struct{ io.Reader }{f}, buf)
	if err != nil {
		return n, err
	}

	if n != size {
		return n, fmt.Errorf("file changed during send: %w", io.ErrUnexpectedEOF)
	}

	return n, nil
}

// reject writes a canned error response, best effort.
func (h *fileHandler) reject(sc *ServerConn, code int) {
	h.metrics.responses.WithLabelValues(strconv.Itoa(code)).Inc()

	w := &deadlineWriter{conn: sc.Conn, timeout: h.config.WriteTimeout}
	if _, err := w.Write(httpmsg.CannedResponse(code, time.Now())); err != nil {
		h.config.Logger.Debugf("[%s] error response %d not delivered: %v", sc.ID, code, err)
	}
}

// deadlineWriter refreshes the write deadline before every write.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	switch {
	case w.timeout > 0:
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, err
		}
	case w.timeout < 0:
		if err := w.conn.SetWriteDeadline(time.Time{}); err != nil {
			return 0, err
		}
	}

	return w.conn.Write(p)
}

// readErrorStatus maps a header read failure onto the status sent back.
func readErrorStatus(err error) int {
	switch {
	case errors.Is(err, httpd.ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, httpd.ErrChannelClosed), errors.Is(err, httpd.ErrMessageTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fsErrorStatus maps a file system error onto a status.
func fsErrorStatus(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// resolveFile joins target to root, evaluates symlinks and checks that the
// result is a regular file inside root. root must already be absolute and
// free of symlinks.
func resolveFile(root, target string) (string, int) {
	joined := filepath.Join(root, filepath.FromSlash(target))

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", fsErrorStatus(err)
	}

	if !within(root, resolved) {
		return "", http.StatusForbidden
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fsErrorStatus(err)
	}

	if !info.Mode().IsRegular() {
		return "", http.StatusNotFound
	}

	return resolved, http.StatusOK
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveRoot turns dir into an absolute, symlink-free path of a readable
// directory.
func resolveRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: root %q: %w", ErrInvalidConfig, dir, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: root %q: %w", ErrInvalidConfig, dir, err)
	}

	d, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: root %q: %w", ErrInvalidConfig, dir, err)
	}
	defer d.Close()

	info, err := d.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: root %q: %w", ErrInvalidConfig, dir, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%w: root %q is not a directory", ErrInvalidConfig, dir)
	}

	return resolved, nil
}

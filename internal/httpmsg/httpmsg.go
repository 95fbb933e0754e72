// Package httpmsg parses and renders the small HTTP/1.1 subset spoken by the
// file server: GET requests with "key: value" header fields and responses
// with a fixed set of canned headers.
package httpmsg

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is the only protocol version accepted.
const Version = "HTTP/1.1"

var (
	// ErrMalformed indicates a header block that violates the line or field rules.
	ErrMalformed = errors.New("malformed http message")
	// ErrDuplicateField indicates a header field that appears twice.
	ErrDuplicateField = errors.New("duplicate header field")
)

// reasons holds the reason phrases written on the status line.
var reasons = map[int]string{
	http.StatusOK:                      "OK",
	http.StatusBadRequest:              "Bad Request",
	http.StatusForbidden:               "Forbidden",
	http.StatusNotFound:                "Not Found",
	http.StatusRequestTimeout:          "Request Timeout",
	http.StatusInternalServerError:     "Internal Server Error",
	http.StatusNotImplemented:          "Not Implemented",
	http.StatusHTTPVersionNotSupported: "Version Not Supported",
}

// Reason returns the reason phrase for code.
func Reason(code int) string {
	if r, ok := reasons[code]; ok {
		return r
	}

	return http.StatusText(code)
}

// Header maps lower-cased field names to lower-cased, trimmed values.
type Header map[string]string

// Request is a parsed request header block.
type Request struct {
	Method  string
	Target  string
	Version string
	Header  Header
}

// Response is a parsed response header block.
type Response struct {
	Version string
	Code    int
	Reason  string
	Header  Header
}

// ContentLength returns the declared body size.
func (r *Response) ContentLength() (int64, error) {
	v, ok := r.Header["content-length"]
	if !ok {
		return 0, fmt.Errorf("%w: missing content-length", ErrMalformed)
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad content-length %q", ErrMalformed, v)
	}

	return n, nil
}

// CheckLineTermination reports whether every '\r' is followed by '\n' and
// every '\n' is preceded by '\r'.
func CheckLineTermination(head []byte) bool {
	for i, b := range head {
		switch b {
		case '\r':
			if i+1 >= len(head) || head[i+1] != '\n' {
				return false
			}
		case '\n':
			if i == 0 || head[i-1] != '\r' {
				return false
			}
		}
	}

	return true
}

// lines splits a header block on CRLF and drops empty lines.
func lines(head []byte) []string {
	var out []string
	for _, l := range strings.Split(string(head), "\r\n") {
		if l != "" {
			out = append(out, l)
		}
	}

	return out
}

// ParseRequest validates a request header block (without the terminating
// blank line) and returns the HTTP status that describes the outcome:
// 200 when the request can be served, otherwise 400, 501 or 505.
func ParseRequest(head []byte) (*Request, int) {
	if !CheckLineTermination(head) {
		return nil, http.StatusBadRequest
	}

	ls := lines(head)
	if len(ls) == 0 {
		return nil, http.StatusBadRequest
	}

	parts := strings.FieldsFunc(ls[0], func(r rune) bool { return r == ' ' })
	if len(parts) != 3 {
		return nil, http.StatusBadRequest
	}

	if parts[0] != http.MethodGet {
		return nil, http.StatusNotImplemented
	}

	if parts[2] != Version {
		return nil, http.StatusHTTPVersionNotSupported
	}

	header, err := ParseFields(ls[1:])
	if err != nil {
		return nil, http.StatusBadRequest
	}

	return &Request{
		Method:  parts[0],
		Target:  parts[1],
		Version: parts[2],
		Header:  header,
	}, http.StatusOK
}

// ParseResponse validates a response header block and its status line.
func ParseResponse(head []byte) (*Response, error) {
	if !CheckLineTermination(head) {
		return nil, fmt.Errorf("%w: bad line termination", ErrMalformed)
	}

	ls := lines(head)
	if len(ls) == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrMalformed)
	}

	parts := strings.SplitN(ls[0], " ", 3)
	if len(parts) != 3 || parts[0] != Version {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformed, ls[0])
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformed, parts[1])
	}

	header, err := ParseFields(ls[1:])
	if err != nil {
		return nil, err
	}

	return &Response{
		Version: parts[0],
		Code:    code,
		Reason:  parts[2],
		Header:  header,
	}, nil
}

// ParseFields parses "key: value" lines. Keys may not contain blanks, values
// may not be empty after trimming, both are lower-cased and a repeated key is
// an error.
func ParseFields(fieldLines []string) (Header, error) {
	h := make(Header, len(fieldLines))

	for _, line := range fieldLines {
		key, value, ok := strings.Cut(line, ":")
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("%w: field %q", ErrMalformed, line)
		}

		value = strings.Trim(value, " \t")
		if value == "" {
			return nil, fmt.Errorf("%w: empty value for %q", ErrMalformed, key)
		}

		key = strings.ToLower(key)
		if _, dup := h[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, key)
		}
		h[key] = strings.ToLower(value)
	}

	return h, nil
}

// FormatHeader renders a response header block for code with the given body
// length, including the terminating blank line.
func FormatHeader(code int, contentLength int64, now time.Time) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %d %s\r\n", Version, code, Reason(code))
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(http.TimeFormat))
	fmt.Fprintf(&b, "Content-Length: %d\r\n", contentLength)
	b.WriteString("Content-Type: text/html\r\n")
	b.WriteString("Connection: Closed\r\n")
	b.WriteString("\r\n")

	return []byte(b.String())
}

// CannedBody returns the HTML body sent with an error status.
func CannedBody(code int) []byte {
	return []byte("<html>" + Reason(code) + "</html>")
}

// CannedResponse renders a complete error response for code.
func CannedResponse(code int, now time.Time) []byte {
	body := CannedBody(code)

	return append(FormatHeader(code, int64(len(body)), now), body...)
}

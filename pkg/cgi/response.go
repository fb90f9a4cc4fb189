package cgi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bastiangx/fcgiclient/internal/utils"
)

// Output is a CGI response split into its parts.
type Output struct {
	Status int
	Reason string
	Header http.Header
	Body   []byte
}

// ParseStdout splits what a responder wrote to FCGI_STDOUT into headers and
// body. Header lines end in CRLF or a bare LF and the block ends with an
// empty line. A "Status: 404 Not Found" header sets Status and is removed
// from Header; without one Status is 200, or 302 when only Location is given.
func ParseStdout(stdout []byte) (*Output, error) {
	out := &Output{Status: http.StatusOK, Header: make(http.Header)}
	rest := stdout
	for {
		if len(rest) == 0 {
			return nil, fmt.Errorf("cgi: header block not terminated")
		}
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			return nil, fmt.Errorf("cgi: header block not terminated")
		}
		line := strings.TrimSuffix(string(rest[:i]), "\r")
		rest = rest[i+1:]
		if line == "" {
			break
		}
		name, value, ok := utils.SplitHeader(line)
		if !ok {
			return nil, fmt.Errorf("cgi: malformed header line %q", line)
		}
		out.Header.Add(name, value)
	}
	out.Body = rest

	if status := out.Header.Get("Status"); status != "" {
		code, reason, _ := strings.Cut(status, " ")
		n, err := strconv.Atoi(code)
		if err != nil || len(code) != 3 {
			return nil, fmt.Errorf("cgi: bad status %q", status)
		}
		out.Status, out.Reason = n, strings.TrimSpace(reason)
		out.Header.Del("Status")
	} else if out.Header.Get("Location") != "" {
		out.Status = http.StatusFound
	}
	if out.Reason == "" {
		out.Reason = http.StatusText(out.Status)
	}
	return out, nil
}

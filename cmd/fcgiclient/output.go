package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bastiangx/fcgiclient/pkg/cgi"
	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/vmihailenco/msgpack/v5"
)

// result is the structured form of one response for json and msgpack output.
type result struct {
	Stdout         string      `json:"stdout,omitempty" msgpack:"stdout,omitempty"`
	Stderr         string      `json:"stderr,omitempty" msgpack:"stderr,omitempty"`
	AppStatus      int32       `json:"app_status" msgpack:"app_status"`
	ProtocolStatus string      `json:"protocol_status" msgpack:"protocol_status"`
	Status         int         `json:"status,omitempty" msgpack:"status,omitempty"`
	Header         http.Header `json:"header,omitempty" msgpack:"header,omitempty"`
	Body           string      `json:"body,omitempty" msgpack:"body,omitempty"`
	TimeTaken      int64       `json:"time_us" msgpack:"time_us"`
}

// printer writes responses in one of the --format styles.
type printer struct {
	format string
	parse  bool
	stdout io.Writer
	stderr io.Writer
}

func newPrinter(format string, parse bool, stdout, stderr io.Writer) (*printer, error) {
	switch format {
	case "text", "json", "msgpack":
	default:
		return nil, fmt.Errorf("unknown --format %q, want text, json or msgpack", format)
	}
	return &printer{format: format, parse: parse, stdout: stdout, stderr: stderr}, nil
}

func (p *printer) print(resp *fcgi.Response, micros int64) error {
	var parsed *cgi.Output
	if p.parse && resp.HasStdout() {
		out, err := cgi.ParseStdout(resp.Stdout)
		if err != nil {
			return err
		}
		parsed = out
	}

	switch p.format {
	case "json", "msgpack":
		r := result{
			Stdout:         string(resp.Stdout),
			Stderr:         string(resp.Stderr),
			AppStatus:      resp.AppStatus,
			ProtocolStatus: resp.ProtocolStatus.String(),
			TimeTaken:      micros,
		}
		if parsed != nil {
			r.Stdout = ""
			r.Status, r.Header, r.Body = parsed.Status, parsed.Header, string(parsed.Body)
		}
		if p.format == "json" {
			enc := json.NewEncoder(p.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}
		return msgpack.NewEncoder(p.stdout).Encode(r)
	}

	if resp.HasStderr() {
		p.stderr.Write(resp.Stderr)
	}
	if parsed != nil {
		fmt.Fprintf(p.stderr, "%d %s\n", parsed.Status, parsed.Reason)
		parsed.Header.Write(p.stderr)
		_, err := p.stdout.Write(parsed.Body)
		return err
	}
	_, err := p.stdout.Write(resp.Stdout)
	return err
}

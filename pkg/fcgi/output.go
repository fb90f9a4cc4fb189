package fcgi

import (
	"fmt"
	"unicode/utf8"
)

// Response is the collected result of one request.
// Stdout and Stderr are nil when the application sent no bytes on that
// stream, and non-nil (possibly empty) otherwise.
type Response struct {
	Stdout         []byte         `msgpack:"stdout" json:"stdout,omitempty"`
	Stderr         []byte         `msgpack:"stderr" json:"stderr,omitempty"`
	AppStatus      int32          `msgpack:"app_status" json:"app_status"`
	ProtocolStatus ProtocolStatus `msgpack:"protocol_status" json:"protocol_status"`
}

func (r *Response) HasStdout() bool { return r.Stdout != nil }
func (r *Response) HasStderr() bool { return r.Stderr != nil }

// Err returns a *StatusError unless the application reported REQUEST_COMPLETE.
func (r *Response) Err() error {
	if r.ProtocolStatus == StatusRequestComplete {
		return nil
	}
	return &StatusError{ProtocolStatus: r.ProtocolStatus, AppStatus: r.AppStatus}
}

func (r *Response) String() string {
	return fmt.Sprintf("Response{stdout: %s, stderr: %s, app_status: %d, protocol_status: %s}",
		preview(r.Stdout), preview(r.Stderr), r.AppStatus, r.ProtocolStatus)
}

func preview(b []byte) string {
	if b == nil {
		return "None"
	}
	if utf8.Valid(b) {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("<%d bytes>", len(b))
}

// outputAssembler accumulates FCGI_STDOUT and FCGI_STDERR content for one
// request until FCGI_END_REQUEST finalizes it.
type outputAssembler struct {
	stdout []byte
	stderr []byte
}

// append takes one stdout or stderr record. Empty records are valid and add
// nothing, since only FCGI_END_REQUEST ends the output.
func (a *outputAssembler) append(rec *Record) {
	if len(rec.Content) == 0 {
		return
	}
	switch rec.Type {
	case TypeStdout:
		a.stdout = append(a.stdout, rec.Content...)
	case TypeStderr:
		a.stderr = append(a.stderr, rec.Content...)
	}
}

func (a *outputAssembler) finalize(end endRequest) *Response {
	return &Response{
		Stdout:         a.stdout,
		Stderr:         a.stderr,
		AppStatus:      end.appStatus,
		ProtocolStatus: end.protocolStatus,
	}
}

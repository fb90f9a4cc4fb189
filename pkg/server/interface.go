/*
Package server implements a msgpack IPC gateway in front of a FastCGI application.

A client process writes ExecRequest values to the gateway's stdin, back to back
with no framing besides msgpack itself, and reads one ExecResponse per request
from stdout. Requests are served in order over one connection that is dialed
lazily and redialed after it fails.

Before the first response the gateway writes a ready frame:

	{"status": "ready"}

A request carries the params as ordered pairs and an optional body:

	{"id": "req_001", "p": [["SCRIPT_FILENAME", "/var/www/index.php"], ["REQUEST_METHOD", "GET"]]}

The response carries what the application wrote plus its statuses and the
time taken in microseconds:

	{"id": "req_001", "o": "Content-type: text/plain\r\n\r\nhello", "a": 0, "s": 0, "t": 412}

When the request could not be completed, "err" holds the reason and "k" the
error kind ("io", "protocol", "unexpected eof", ...).
*/
package server

// ExecRequest - one FastCGI request
type ExecRequest struct {
	ID     string      `msgpack:"id"`
	Params [][2]string `msgpack:"p"`
	Body   []byte      `msgpack:"b,omitempty"`
	// TimeoutMs overrides the gateway's request timeout when positive.
	TimeoutMs int `msgpack:"to,omitempty"`
}

// ExecResponse - what the application answered
type ExecResponse struct {
	ID             string `msgpack:"id"`
	Stdout         []byte `msgpack:"o,omitempty"`
	Stderr         []byte `msgpack:"e,omitempty"`
	AppStatus      int32  `msgpack:"a"`
	ProtocolStatus uint8  `msgpack:"s"`
	Error          string `msgpack:"err,omitempty"`
	Kind           string `msgpack:"k,omitempty"`
	TimeTaken      int64  `msgpack:"t"`
}

// StatusMessage is written once the gateway accepts requests.
type StatusMessage struct {
	Status string `msgpack:"status"`
}

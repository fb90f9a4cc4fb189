package server

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/bastiangx/fcgiclient/internal/logger"
	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Dialer opens a new connection to the application.
type Dialer func(ctx context.Context) (*fcgi.Conn, error)

// Option configures a Server.
type Option func(*Server)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) { s.in, s.out = in, out }
}

// WithBaseParams sets params every request starts from. Request params
// override them by name.
func WithBaseParams(p *fcgi.Params) Option {
	return func(s *Server) { s.base = p }
}

// WithRequestTimeout bounds each request. Zero means no bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server handles the msgpack IPC
type Server struct {
	dial    Dialer
	base    *fcgi.Params
	timeout time.Duration
	in      io.Reader
	out     io.Writer
	logger  *log.Logger

	conn     *fcgi.Conn
	requests int
}

// NewServer returns a gateway on stdin/stdout that reaches the application through dial.
func NewServer(dial Dialer, opts ...Option) *Server {
	s := &Server{dial: dial, in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.New("gateway")
	}
	return s
}

// Start serves requests until the input ends, ctx is done or a frame does not decode.
func (s *Server) Start(ctx context.Context) error {
	defer s.dropConn()

	dec := msgpack.NewDecoder(s.in)
	enc := msgpack.NewEncoder(s.out)

	s.logger.Debug("Starting gateway.")
	if err := enc.Encode(StatusMessage{Status: "ready"}); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req ExecRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("input closed", "requests", s.requests)
				return nil
			}
			s.logger.Error("decoding request", "err", err)
			enc.Encode(ExecResponse{Error: "invalid msgpack request: " + err.Error(), Kind: "decode"})
			return err
		}
		resp := s.handle(ctx, &req)
		if err := enc.Encode(resp); err != nil {
			s.logger.Error("encoding response", "id", req.ID, "err", err)
			return err
		}
	}
}

// handle runs one request and always produces a response.
func (s *Server) handle(ctx context.Context, req *ExecRequest) *ExecResponse {
	s.requests++
	resp := &ExecResponse{ID: req.ID}
	start := time.Now()
	defer func() {
		resp.TimeTaken = time.Since(start).Microseconds()
	}()

	timeout := s.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := s.connect(ctx)
	if err != nil {
		setError(resp, err)
		return resp
	}

	params := s.base.Clone()
	for _, kv := range req.Params {
		params.Set(kv[0], kv[1])
	}
	out, err := conn.Execute(ctx, &fcgi.Request{Params: params, Body: fcgi.Chunks(req.Body)})
	if !conn.KeepConn() {
		// single-shot connections serve this one request
		s.dropConn()
	}
	if err != nil {
		var e *fcgi.Error
		if errors.As(err, &e) && e.Fatal() {
			s.logger.Warn("connection failed, redialing on next request", "err", err)
			s.dropConn()
		}
		setError(resp, err)
		return resp
	}

	resp.Stdout = out.Stdout
	resp.Stderr = out.Stderr
	resp.AppStatus = out.AppStatus
	resp.ProtocolStatus = uint8(out.ProtocolStatus)
	if err := out.Err(); err != nil {
		resp.Error = err.Error()
		resp.Kind = "status"
	}
	s.logger.Debug("request done", "id", req.ID, "app_status", out.AppStatus, "stdout", len(out.Stdout), "stderr", len(out.Stderr))
	return resp
}

// connect returns the current connection, dialing a new one when there is
// none or the last one failed.
func (s *Server) connect(ctx context.Context) (*fcgi.Conn, error) {
	if s.conn != nil && s.conn.Err() == nil {
		return s.conn, nil
	}
	s.dropConn()
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

func (s *Server) dropConn() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func setError(resp *ExecResponse, err error) {
	resp.Error = err.Error()
	var e *fcgi.Error
	switch {
	case errors.As(err, &e):
		resp.Kind = e.Kind.String()
	case errors.Is(err, context.DeadlineExceeded):
		resp.Kind = "timeout"
	case errors.Is(err, context.Canceled):
		resp.Kind = "canceled"
	default:
		resp.Kind = "io"
	}
}

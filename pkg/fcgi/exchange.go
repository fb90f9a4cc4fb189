package fcgi

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Request is one responder-role request.
type Request struct {
	// ID is the request id on the wire. Zero picks the lowest free id.
	ID     uint16
	Params *Params
	// Body is sent as FCGI_STDIN. Nil sends an empty body.
	Body BodySource
}

type exchangeState int

const (
	stateCreated exchangeState = iota
	stateParamsSent
	stateStdinSent
	stateAwaitingEnd
	stateCompleted
	stateFailed
)

func (s exchangeState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateParamsSent:
		return "params sent"
	case stateStdinSent:
		return "stdin sent"
	case stateAwaitingEnd:
		return "awaiting end"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// exchange drives one request through its states:
//
//	created -> params sent -> stdin sent -> awaiting end -> completed
//
// Any state may move to failed.
type exchange struct {
	c     *Conn
	p     *pending
	req   *Request
	state exchangeState
	out   outputAssembler
}

func newExchange(c *Conn, p *pending, req *Request) *exchange {
	return &exchange{c: c, p: p, req: req, state: stateCreated}
}

func (x *exchange) setState(s exchangeState) {
	x.c.logger.Debug("request", "id", x.p.id, "from", x.state, "to", s)
	x.state = s
}

// send writes BEGIN_REQUEST, the params stream and the stdin stream while
// holding the write lock, so no other request's records interleave with them.
func (x *exchange) send(ctx context.Context) error {
	id := x.p.id
	w := x.c.beginSend()

	if err := w.write(TypeBeginRequest, id, beginRequestBody(RoleResponder, x.c.keepConn)); err != nil {
		return x.writeFailed(w, err)
	}
	for _, body := range EncodeParams(x.req.Params) {
		if err := w.write(TypeParams, id, body); err != nil {
			return x.writeFailed(w, err)
		}
	}
	if err := w.write(TypeParams, id, nil); err != nil {
		return x.writeFailed(w, err)
	}
	x.setState(stateParamsSent)

	body := x.req.Body
	if body == nil {
		body = Chunks()
	}
	for {
		if err := ctx.Err(); err != nil {
			return x.abortSend(w, err)
		}
		chunk, err := body.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return x.abortSend(w, fmt.Errorf("fcgi: request body: %w", err))
		}
		if len(chunk) == 0 {
			continue
		}
		if err := w.writeStream(TypeStdin, id, chunk); err != nil {
			return x.writeFailed(w, err)
		}
		// chunks are flushed as produced, the body may be larger than memory
		if err := w.flush(); err != nil {
			return x.writeFailed(w, err)
		}
	}
	if err := w.write(TypeStdin, id, nil); err != nil {
		return x.writeFailed(w, err)
	}
	x.setState(stateStdinSent)

	if err := w.end(); err != nil {
		x.setState(stateFailed)
		err = classify("write", id, err)
		x.c.shutdown(err)
		return err
	}
	x.setState(stateAwaitingEnd)
	return nil
}

// writeFailed handles a stream write error, which leaves the Conn unusable.
func (x *exchange) writeFailed(w *recordWriter, err error) error {
	w.unlock()
	x.setState(stateFailed)
	err = classify("write", x.p.id, err)
	x.c.shutdown(err)
	return err
}

// abortSend stops a request whose stdin could not be completed. The
// application is told with FCGI_ABORT_REQUEST and the id stays reserved
// until it ends the request.
func (x *exchange) abortSend(w *recordWriter, cause error) error {
	id := x.p.id
	err := w.write(TypeAbortRequest, id, nil)
	if err == nil {
		err = w.end()
	} else {
		w.unlock()
	}
	x.setState(stateFailed)
	if err != nil {
		err = classify("write", id, err)
		x.c.shutdown(err)
		return err
	}
	x.c.abandon(x.p)
	return cause
}

// abort is called when the caller stops waiting for the response.
func (x *exchange) abort() {
	x.setState(stateFailed)
	go x.c.sendAbort(x.p.id)
	x.c.abandon(x.p)
}

// next returns the next non-empty stdout or stderr record, or nil and the
// final Response once FCGI_END_REQUEST arrives.
func (x *exchange) next(ctx context.Context, keep bool) (*Record, *Response, error) {
	for {
		rec, err := x.p.inbox.pop(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				x.abort()
				return nil, nil, err
			}
			x.setState(stateFailed)
			return nil, nil, err
		}

		switch rec.Type {
		case TypeStdout, TypeStderr:
			if len(rec.Content) == 0 {
				continue
			}
			if keep {
				x.out.append(rec)
			}
			return rec, nil, nil
		case TypeEndRequest:
			end, err := parseEndRequest(rec.Content)
			if err != nil {
				return nil, nil, x.protocolFailure(err)
			}
			x.setState(stateCompleted)
			resp := x.out.finalize(end)
			x.c.complete(x.p, end.protocolStatus)
			return nil, resp, nil
		default:
			return nil, nil, x.protocolFailure(&ProtocolError{Reason: fmt.Sprintf("unexpected %s record for request %d", rec.Type, rec.RequestID)})
		}
	}
}

func (x *exchange) protocolFailure(err error) error {
	x.setState(stateFailed)
	e := wrapErr(KindProtocol, "read", x.p.id, err)
	x.c.shutdown(e)
	return e
}

// collect gathers the whole response.
func (x *exchange) collect(ctx context.Context) (*Response, error) {
	for {
		_, resp, err := x.next(ctx, true)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}
}

var errStreamClosed = errors.New("fcgi: response stream closed")

// Content is one piece of output in arrival order.
type Content struct {
	Type RecordType // TypeStdout or TypeStderr
	Data []byte
}

func (c Content) IsStdout() bool { return c.Type == TypeStdout }
func (c Content) IsStderr() bool { return c.Type == TypeStderr }

// ResponseStream yields a request's output as it arrives instead of
// collecting it.
type ResponseStream struct {
	ctx  context.Context
	x    *exchange
	end  *Response
	err  error
	done bool
}

// Next returns the next piece of output. It returns io.EOF after
// FCGI_END_REQUEST, after which End reports the statuses.
func (s *ResponseStream) Next() (Content, error) {
	if s.done {
		if s.err != nil {
			return Content{}, s.err
		}
		return Content{}, io.EOF
	}
	rec, resp, err := s.x.next(s.ctx, false)
	switch {
	case err != nil:
		s.done, s.err = true, err
		return Content{}, err
	case resp != nil:
		s.done, s.end = true, resp
		return Content{}, io.EOF
	}
	return Content{Type: rec.Type, Data: rec.Content}, nil
}

// End returns the application and protocol status once Next has returned
// io.EOF. The Stdout and Stderr fields are always nil.
func (s *ResponseStream) End() (*Response, bool) {
	return s.end, s.end != nil
}

// Close aborts the request unless it already ended.
func (s *ResponseStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.err = errStreamClosed
	s.x.abort()
	return nil
}

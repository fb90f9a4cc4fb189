package fcgi

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/bastiangx/fcgiclient/internal/logger"
	"github.com/charmbracelet/log"
)

// Stream is the byte stream a Conn owns: a connected, ordered, reliable
// transport such as *net.TCPConn or *net.UnixConn.
// If it also has SetWriteDeadline(time.Time) error, the write timeout applies.
type Stream interface {
	io.ReadWriteCloser
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Option configures a Conn.
type Option func(*Conn)

// WithKeepConn asks the application to keep the stream open after each
// request so that the Conn can serve more than one.
func WithKeepConn(keep bool) Option {
	return func(c *Conn) { c.keepConn = keep }
}

// WithMultiplex lets requests overlap on one keep-alive Conn. It is switched
// off again as soon as the application answers FCGI_CANT_MPX_CONN.
func WithMultiplex(on bool) Option {
	return func(c *Conn) { c.multiplex = on }
}

// WithLogger replaces the default "fcgi" logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWriteTimeout bounds the time spent writing one request's record sequence.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) { c.writeTimeout = d }
}

// pending is the connection-side state of one in-flight request id.
type pending struct {
	id        uint16
	inbox     *inbox
	abandoned bool
	holdsTurn bool
}

// Conn is a client connection to one FastCGI application.
// It is the only reader and the only writer of its stream.
type Conn struct {
	stream       Stream
	br           *bufio.Reader
	bw           *bufio.Writer
	logger       *log.Logger
	keepConn     bool
	writeTimeout time.Duration

	writeMu sync.Mutex    // one request's outbound records at a time
	turn    chan struct{} // held by the in-flight request unless multiplexing

	mu        sync.Mutex
	pending   map[uint16]*pending
	multiplex bool
	served    bool
	closed    bool
	err       error

	done chan struct{} // closed when the read loop exits
}

// NewConn takes ownership of s and starts reading records from it.
// No other code may read from or write to s afterwards.
func NewConn(s Stream, opts ...Option) *Conn {
	c := &Conn{
		stream:  s,
		br:      bufio.NewReaderSize(s, HeaderSize+MaxContent),
		bw:      bufio.NewWriterSize(s, 16*1024),
		turn:    make(chan struct{}, 1),
		pending: make(map[uint16]*pending),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.New("fcgi")
	}
	go c.readLoop()
	return c
}

// KeepConn reports whether the Conn serves more than one request.
func (c *Conn) KeepConn() bool { return c.keepConn }

// Multiplexing reports whether requests may currently overlap.
func (c *Conn) Multiplexing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplex
}

// Err returns the error that made the Conn unusable, or nil.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the stream and fails every request still in flight with
// ErrConnClosed. It is safe to call more than once.
func (c *Conn) Close() error {
	err := c.shutdown(wrapErr(KindConnClosed, "close", 0, ErrConnClosed))
	<-c.done
	return err
}

// shutdown marks the Conn unusable with cause, closes the stream and wakes
// every pending request. Only the first call closes the stream.
func (c *Conn) shutdown(cause error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.err == nil {
		c.err = cause
	}
	cause = c.err
	pend := c.pending
	c.pending = make(map[uint16]*pending)
	turns := 0
	for _, p := range pend {
		if p.holdsTurn {
			p.holdsTurn = false
			turns++
		}
	}
	c.mu.Unlock()

	for _, p := range pend {
		p.inbox.fail(cause)
	}
	for ; turns > 0; turns-- {
		<-c.turn
	}
	err := c.stream.Close()
	if err != nil {
		c.logger.Warn("close stream", "err", err)
	}
	return err
}

// register reserves a request id and returns its inbox. A zero id picks the
// lowest free id.
func (c *Conn) register(id uint16) (*pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, wrapErr(KindConnClosed, "execute", id, c.closedCause())
	}
	if !c.keepConn && c.served {
		return nil, wrapErr(KindConnClosed, "execute", id, errors.New("connection without keep-alive already served a request"))
	}
	if id == 0 {
		for next := 1; next <= 0xffff; next++ {
			if _, busy := c.pending[uint16(next)]; !busy {
				id = uint16(next)
				break
			}
		}
		if id == 0 {
			return nil, ErrNoRequestID
		}
	} else if _, busy := c.pending[id]; busy {
		return nil, wrapErr(KindRequestIDConflict, "execute", id, ErrRequestIDConflict)
	}
	c.served = true
	p := &pending{id: id, inbox: newInbox()}
	c.pending[id] = p
	return p, nil
}

func (c *Conn) closedCause() error {
	if c.err != nil && !errors.Is(c.err, ErrConnClosed) {
		return errors.Join(ErrConnClosed, c.err)
	}
	return ErrConnClosed
}

// acquireTurn waits until no other request is in flight, unless multiplexing.
func (c *Conn) acquireTurn(ctx context.Context, p *pending) error {
	if c.Multiplexing() {
		return nil
	}
	select {
	case c.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return wrapErr(KindConnClosed, "execute", p.id, ErrConnClosed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.pending[p.id]; !ok || cur != p {
		// the Conn was shut down while we waited
		<-c.turn
		return wrapErr(KindConnClosed, "execute", p.id, c.closedCause())
	}
	p.holdsTurn = true
	return nil
}

// release frees the id of p and the turn it holds.
func (c *Conn) release(p *pending) {
	c.mu.Lock()
	cur, ok := c.pending[p.id]
	if ok && cur == p {
		delete(c.pending, p.id)
	}
	holds := ok && cur == p && p.holdsTurn
	p.holdsTurn = false
	c.mu.Unlock()
	if holds {
		<-c.turn
	}
}

// abandon hands p over to the read loop, which drops its records until
// FCGI_END_REQUEST arrives and then frees the id.
func (c *Conn) abandon(p *pending) {
	c.mu.Lock()
	cur, ok := c.pending[p.id]
	if !ok || cur != p {
		c.mu.Unlock()
		return
	}
	if !p.inbox.drainForEnd() {
		p.abandoned = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.release(p)
}

// complete runs after FCGI_END_REQUEST for p was processed.
func (c *Conn) complete(p *pending, status ProtocolStatus) {
	if status == StatusCantMultiplex {
		c.mu.Lock()
		if c.multiplex {
			c.logger.Warn("application can't multiplex, falling back to one request at a time")
		}
		c.multiplex = false
		c.mu.Unlock()
	}
	c.release(p)
	if !c.keepConn {
		c.logger.Debug("closing connection after request", "id", p.id)
		c.shutdown(wrapErr(KindConnClosed, "execute", 0, ErrConnClosed))
	}
}

// recordWriter writes one request's records while holding the write lock.
type recordWriter struct {
	c      *Conn
	header [HeaderSize]byte
	pad    [8]byte
}

// beginSend locks the outbound side of the stream for one request.
func (c *Conn) beginSend() *recordWriter {
	c.writeMu.Lock()
	c.setWriteDeadline(time.Now().Add(c.writeTimeout))
	return &recordWriter{c: c}
}

// write buffers one record. content must not exceed MaxContent.
func (w *recordWriter) write(t RecordType, id uint16, content []byte) error {
	if len(content) > MaxContent {
		return ErrContentTooLarge
	}
	padding := paddingFor(len(content))
	putHeader(w.header[:], t, id, len(content), padding)
	w.c.logger.Debug("send", "type", t, "id", id, "len", len(content))
	if _, err := w.c.bw.Write(w.header[:]); err != nil {
		return err
	}
	if _, err := w.c.bw.Write(content); err != nil {
		return err
	}
	_, err := w.c.bw.Write(w.pad[:padding])
	return err
}

// writeStream writes content as one or more records of type t, split at
// MaxContent bytes. Empty content writes nothing.
func (w *recordWriter) writeStream(t RecordType, id uint16, content []byte) error {
	for len(content) > 0 {
		n := min(len(content), MaxContent)
		if err := w.write(t, id, content[:n]); err != nil {
			return err
		}
		content = content[n:]
	}
	return nil
}

func (w *recordWriter) flush() error {
	return w.c.bw.Flush()
}

// end flushes and unlocks the outbound side.
func (w *recordWriter) end() error {
	err := w.c.bw.Flush()
	w.unlock()
	return err
}

func (w *recordWriter) unlock() {
	w.c.setWriteDeadline(time.Time{})
	w.c.writeMu.Unlock()
}

// setWriteDeadline applies t when a write timeout is configured and the
// stream supports deadlines.
func (c *Conn) setWriteDeadline(t time.Time) {
	if c.writeTimeout <= 0 {
		return
	}
	d, ok := c.stream.(writeDeadliner)
	if !ok {
		return
	}
	if err := d.SetWriteDeadline(t); err != nil {
		c.logger.Warn("set write deadline", "err", err)
	}
}

// sendAbort writes FCGI_ABORT_REQUEST for id. Failures are only logged.
func (c *Conn) sendAbort(id uint16) {
	w := c.beginSend()
	err := w.write(TypeAbortRequest, id, nil)
	if err == nil {
		err = w.end()
	} else {
		w.unlock()
	}
	if err != nil {
		c.logger.Warn("abort request", "id", id, "err", err)
	}
}

// readRecord returns the next inbound record. Only the read loop calls it.
func (c *Conn) readRecord() (*Record, error) {
	rec, err := ReadRecord(c.br)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("recv", "type", rec.Type, "id", rec.RequestID, "len", len(rec.Content))
	return rec, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		rec, err := c.readRecord()
		if err != nil {
			c.shutdown(c.readFailure(err))
			return
		}
		if err := c.dispatch(rec); err != nil {
			c.shutdown(err)
			return
		}
	}
}

// readFailure maps a read loop error to the error pending requests observe.
func (c *Conn) readFailure(err error) error {
	c.mu.Lock()
	closed := c.closed
	idle := len(c.pending) == 0
	c.mu.Unlock()
	switch {
	case closed:
		return wrapErr(KindConnClosed, "read", 0, ErrConnClosed)
	case idle && errors.Is(err, io.EOF):
		return wrapErr(KindConnClosed, "read", 0, ErrConnClosed)
	case errors.Is(err, io.EOF):
		return wrapErr(KindUnexpectedEOF, "read", 0, ErrUnexpectedEOF)
	default:
		return classify("read", 0, err)
	}
}

// dispatch routes rec to the inbox of its request id. The error is fatal.
func (c *Conn) dispatch(rec *Record) error {
	if rec.RequestID == 0 {
		c.logger.Warn("discarding management record", "type", rec.Type)
		return nil
	}
	c.mu.Lock()
	p, ok := c.pending[rec.RequestID]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("discarding record for unknown request", "type", rec.Type, "id", rec.RequestID)
		return nil
	}
	if p.abandoned {
		c.mu.Unlock()
		if rec.Type == TypeEndRequest {
			c.logger.Debug("aborted request ended", "id", rec.RequestID)
			end, err := parseEndRequest(rec.Content)
			if err != nil {
				return wrapErr(KindProtocol, "read", rec.RequestID, err)
			}
			c.complete(p, end.protocolStatus)
		}
		return nil
	}
	// pushed under c.mu so that abandon sees either the record or the flag
	p.inbox.push(rec)
	c.mu.Unlock()
	return nil
}

// Execute sends req and waits for the complete response.
//
// A Conn without keep-alive serves exactly one request and closes its stream
// afterwards; later calls fail with ErrConnClosed. Unless multiplexing is
// enabled, concurrent calls on one Conn run one after another.
//
// If ctx is done before the response is complete, FCGI_ABORT_REQUEST is
// sent and ctx.Err() is returned; the id stays reserved until the
// application ends the request.
func (c *Conn) Execute(ctx context.Context, req *Request) (*Response, error) {
	x, err := c.start(ctx, req)
	if err != nil {
		return nil, err
	}
	return x.collect(ctx)
}

// ExecuteStream sends req and returns a stream of stdout and stderr content
// in arrival order. The stream must be read to io.EOF or closed.
func (c *Conn) ExecuteStream(ctx context.Context, req *Request) (*ResponseStream, error) {
	x, err := c.start(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ResponseStream{ctx: ctx, x: x}, nil
}

// start registers req, takes its turn and writes its record sequence.
func (c *Conn) start(ctx context.Context, req *Request) (*exchange, error) {
	if req == nil {
		req = &Request{}
	}
	p, err := c.register(req.ID)
	if err != nil {
		return nil, err
	}
	if err := c.acquireTurn(ctx, p); err != nil {
		c.release(p)
		return nil, err
	}
	x := newExchange(c, p, req)
	if err := x.send(ctx); err != nil {
		return nil, err
	}
	return x, nil
}

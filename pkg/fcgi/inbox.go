package fcgi

import (
	"context"
	"sync"
)

// inbox is the unbounded, ordered queue of inbound records for one request id.
// The read loop pushes without ever blocking; the owning request pops.
type inbox struct {
	mu     sync.Mutex
	recs   []*Record
	err    error
	ready  chan struct{} // cap 1, signalled on push or fail
	closed bool
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

func (b *inbox) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *inbox) push(rec *Record) {
	b.mu.Lock()
	if !b.closed {
		b.recs = append(b.recs, rec)
	}
	b.mu.Unlock()
	b.signal()
}

// fail wakes the owner with err once the queued records are consumed.
func (b *inbox) fail(err error) {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.err = err
	}
	b.mu.Unlock()
	b.signal()
}

// drainForEnd drops the queue and reports whether FCGI_END_REQUEST was in it.
func (b *inbox) drainForEnd() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	found := false
	for _, rec := range b.recs {
		if rec.Type == TypeEndRequest {
			found = true
		}
	}
	b.recs = nil
	return found
}

// pop returns the next record in arrival order.
func (b *inbox) pop(ctx context.Context) (*Record, error) {
	for {
		b.mu.Lock()
		if len(b.recs) > 0 {
			rec := b.recs[0]
			b.recs[0] = nil
			b.recs = b.recs[1:]
			b.mu.Unlock()
			return rec, nil
		}
		if b.closed {
			err := b.err
			b.mu.Unlock()
			return nil, err
		}
		b.mu.Unlock()

		select {
		case <-b.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

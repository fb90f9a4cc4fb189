package fcgi

import (
	"errors"
	"io"
)

// BodySource yields a request body as a finite sequence of chunks.
// Next returns io.EOF once the body is exhausted; it may do so on the first call.
type BodySource interface {
	Next() ([]byte, error)
}

type chunkBody struct {
	chunks [][]byte
}

// Chunks returns a BodySource yielding each chunk in order.
func Chunks(chunks ...[]byte) BodySource {
	return &chunkBody{chunks: chunks}
}

func (b *chunkBody) Next() ([]byte, error) {
	if len(b.chunks) == 0 {
		return nil, io.EOF
	}
	chunk := b.chunks[0]
	b.chunks = b.chunks[1:]
	return chunk, nil
}

type readerBody struct {
	r   io.Reader
	buf []byte
}

// ReaderBody adapts r to a BodySource. Each chunk is at most one record of
// content and is only valid until the next call to Next.
func ReaderBody(r io.Reader) BodySource {
	if r == nil {
		return Chunks()
	}
	return &readerBody{r: r}
}

func (b *readerBody) Next() ([]byte, error) {
	if b.buf == nil {
		b.buf = make([]byte, MaxContent)
	}
	for {
		n, err := b.r.Read(b.buf)
		if n > 0 {
			// data first, the error surfaces on the next call
			return b.buf[:n], nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// Package bodybuffer provides memory-efficient storage for a fully
// buffered request body, spilling to disk if it ever grows past its limit.
// Adapted from go-rawhttp's pkg/buffer.Buffer; the server dispatcher (C8)
// uses it to assemble a fixed Content-Length body out of RequestBodyChunk
// frames before handing it to the upstream client.
package bodybuffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/shipproxy/shipproxy/internal/constants"
)

// Buffer stores data either in memory or spooled to a temporary file once
// it exceeds its configured limit.
type Buffer struct {
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	mu     sync.Mutex
	closed bool
}

// New creates a Buffer with the given memory limit; limit <= 0 defaults to
// constants.MaxBufferedBody.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = constants.MaxBufferedBody
	}
	return &Buffer{limit: limit}
}

// Write stores p, spilling to a temp file if the limit is exceeded.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "shipproxy-body-*.tmp")
		if err != nil {
			return 0, err
		}
		b.file = tmp
		b.path = tmp.Name()
		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				b.closeLocked()
				return 0, err
			}
			b.buf.Reset()
		}
	}
	return b.file.Write(p)
}

// Bytes returns the in-memory payload, or nil if it spilled to disk.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Size returns the total number of bytes written so far.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Reader returns a fresh ReadCloser over the stored data.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, io.ErrClosedPipe
	}
	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, err
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close releases the backing temp file, if any. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Buffer) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = removeErr
		}
		b.file = nil
		b.path = ""
		return err
	}
	return nil
}

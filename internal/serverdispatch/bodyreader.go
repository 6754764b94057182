package serverdispatch

import (
	"bufio"
	"fmt"
	"io"

	"github.com/shipproxy/shipproxy/internal/frame"
)

// frameBodyReader exposes the RequestBodyChunk/RequestEnd frame stream on
// the link as an io.ReadCloser, for handing a streaming request body to the
// upstream HTTP client without buffering it first.
type frameBodyReader struct {
	r       *bufio.Reader
	pending []byte
	ended   bool
}

func newFrameBodyReader(r *bufio.Reader) *frameBodyReader {
	return &frameBodyReader{r: r}
}

// Read implements io.Reader, pulling additional frames from the link as
// needed and returning io.EOF once RequestEnd is observed.
func (b *frameBodyReader) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		if b.ended {
			return 0, io.EOF
		}
		t, payload, err := frame.ReadFrame(b.r)
		if err != nil {
			return 0, err
		}
		switch t {
		case frame.TypeRequestBodyChunk:
			if len(payload) > 0 {
				b.pending = payload
			}
		case frame.TypeRequestEnd:
			b.ended = true
			return 0, io.EOF
		default:
			return 0, fmt.Errorf("unexpected frame %s in request body", t)
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// Close implements io.Closer; closing the reader does not touch the link.
func (b *frameBodyReader) Close() error { return nil }

// drainToEnd discards any remaining RequestBodyChunk frames up through
// RequestEnd. The dispatcher calls this whenever the upstream client did
// not read the body to completion itself (e.g. it failed before or during
// the request), so the link stays frame-aligned for the next exchange.
func (b *frameBodyReader) drainToEnd() error {
	if b.ended {
		return nil
	}
	for {
		t, _, err := frame.ReadFrame(b.r)
		if err != nil {
			return err
		}
		switch t {
		case frame.TypeRequestEnd:
			b.ended = true
			return nil
		case frame.TypeRequestBodyChunk:
			continue
		default:
			return fmt.Errorf("unexpected frame %s draining request body", t)
		}
	}
}

// Package serverdispatch implements the server-side request dispatchers
// (C8, C9): translating frames into real outbound HTTP and TCP I/O. The
// upstream HTTP client is net/http.Client — spec §1 explicitly treats the
// upstream client as an out-of-scope external collaborator ("any HTTP/1.1
// client that supports streaming ... suffices"), so the stdlib client,
// configured the way go-rawhttp's own Options struct configures timeouts
// and redirect behavior, is the sanctioned choice here.
package serverdispatch

import (
	"bufio"
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/shipproxy/shipproxy/internal/bodybuffer"
	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/frame"
	"github.com/shipproxy/shipproxy/internal/headers"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

// Dispatcher holds the shared upstream HTTP client used for every HTTP job
// dispatched by the server.
type Dispatcher struct {
	Upstream *http.Client
}

// NewDispatcher returns a Dispatcher whose upstream client disables
// redirect-following and enforces spec's 30s end-to-end timeout.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Upstream: &http.Client{
			Timeout: constants.UpstreamTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// DispatchHTTP implements C8: given the decoded RequestStart payload and a
// reader positioned right after it, performs the upstream request and
// streams the response back as frames. It always drains through
// RequestEnd before returning, even on upstream failure, so the link never
// desynchronizes.
func (d *Dispatcher) DispatchHTTP(r *bufio.Reader, w *bufio.Writer, payload []byte) error {
	var rs frame.RequestStartPayload
	if err := frame.DecodeJSON(payload, &rs); err != nil {
		return shiperrors.NewProtocolError("decode_request_start", "malformed RequestStart JSON", err)
	}

	outHeader := frame.HeaderMap{}
	headers.CopyHeaders(outHeader, rs.Header)
	deleteCaseInsensitive(outHeader, "host")

	contentLength, hasContentLength := contentLengthOf(rs.Header)

	var body io.Reader
	var bodyReader *frameBodyReader
	if hasContentLength && contentLength <= constants.MaxBufferedBody {
		buf, err := readAllBody(r)
		if err != nil {
			return d.writeSyntheticError(w, err)
		}
		defer buf.Close()
		bodyRC, err := buf.Reader()
		if err != nil {
			return d.writeSyntheticError(w, err)
		}
		if buf.Size() > 0 {
			body = bodyRC
		}
	} else {
		bodyReader = newFrameBodyReader(r)
		body = bodyReader
	}

	req, err := http.NewRequestWithContext(context.Background(), rs.Method, rs.AbsoluteURL, body)
	if err != nil {
		if bodyReader != nil {
			_ = bodyReader.drainToEnd()
		}
		return d.writeSyntheticError(w, err)
	}
	headers.ApplyToHTTPHeader(req.Header, outHeader)
	if hasContentLength {
		req.ContentLength = int64(contentLength)
	}

	resp, err := d.Upstream.Do(req)
	if bodyReader != nil {
		if derr := bodyReader.drainToEnd(); derr != nil {
			// The link desynchronized; nothing more can be salvaged for
			// this exchange.
			return shiperrors.NewProtocolError("drain_request_body", "failed to drain request body after upstream call", derr)
		}
	}
	if err != nil {
		return d.writeSyntheticError(w, err)
	}
	defer resp.Body.Close()

	return d.streamResponse(w, resp)
}

func (d *Dispatcher) streamResponse(w *bufio.Writer, resp *http.Response) error {
	respHeader := headers.FromHTTPHeader(resp.Header)
	out := frame.HeaderMap{}
	headers.CopyHeaders(out, respHeader)

	start := frame.ResponseStartPayload{
		StatusCode: frame.StatusCode(resp.StatusCode),
		Status:     http.StatusText(resp.StatusCode),
		Header:     out,
	}
	if err := frame.WriteJSONFrame(w, frame.TypeResponseStart, start); err != nil {
		return shiperrors.NewProtocolError("send_response_start", "failed to write ResponseStart", err)
	}

	buf := make([]byte, constants.ResponseChunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if werr := frame.WriteFrame(w, frame.TypeResponseBodyChunk, buf[:n]); werr != nil {
				return shiperrors.NewProtocolError("send_response_body", "failed to write ResponseBodyChunk", werr)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return shiperrors.NewUpstreamError(rerr)
		}
	}
	if err := frame.WriteFrame(w, frame.TypeResponseEnd, nil); err != nil {
		return shiperrors.NewProtocolError("send_response_end", "failed to write ResponseEnd", err)
	}
	return nil
}

// writeSyntheticError emits a synthetic 502 response, preserving framing
// discipline so the link survives a failed upstream call (spec §4.8,
// invariant 6): the failure is the origin's, not the link's, so once the
// 502 is fully framed this returns nil and the link keeps serving the next
// job. Only a failure to write the synthetic response itself — meaning the
// link is actually broken — is reported back to the caller as fatal.
func (d *Dispatcher) writeSyntheticError(w *bufio.Writer, cause error) error {
	log.Printf("[server] upstream request failed, sending synthetic 502: %v", cause)

	start := frame.ResponseStartPayload{
		StatusCode: 502,
		Status:     "Bad Gateway",
		Header:     frame.HeaderMap{"Content-Type": {"text/plain"}},
	}
	if err := frame.WriteJSONFrame(w, frame.TypeResponseStart, start); err != nil {
		return shiperrors.NewProtocolError("send_response_start", "failed to write synthetic ResponseStart", err)
	}
	body := []byte("Bad Gateway: " + cause.Error())
	if err := frame.WriteFrame(w, frame.TypeResponseBodyChunk, body); err != nil {
		return shiperrors.NewProtocolError("send_response_body", "failed to write synthetic ResponseBodyChunk", err)
	}
	if err := frame.WriteFrame(w, frame.TypeResponseEnd, nil); err != nil {
		return shiperrors.NewProtocolError("send_response_end", "failed to write synthetic ResponseEnd", err)
	}
	return nil
}

// readAllBody drains RequestBodyChunk frames through RequestEnd into a
// bodybuffer.Buffer, spilling to disk in the unlikely case the frames carry
// more than constants.MaxBufferedBody bytes (and so more than their
// announced Content-Length).
func readAllBody(r *bufio.Reader) (*bodybuffer.Buffer, error) {
	reader := newFrameBodyReader(r)
	buf := bodybuffer.New(constants.MaxBufferedBody)
	chunk := make([]byte, constants.RequestChunkSize)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			if _, werr := buf.Write(chunk[:n]); werr != nil {
				return nil, werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			return nil, err
		}
	}
}

func contentLengthOf(hm frame.HeaderMap) (int, bool) {
	for k, vv := range hm {
		if strings.EqualFold(k, "Content-Length") && len(vv) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(vv[0]))
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func deleteCaseInsensitive(hm frame.HeaderMap, name string) {
	for k := range hm {
		if strings.EqualFold(k, name) {
			delete(hm, k)
		}
	}
}

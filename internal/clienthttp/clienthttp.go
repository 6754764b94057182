// Package clienthttp implements the client HTTP job handler (C5): it
// translates one buffered browser request into RequestStart /
// RequestBodyChunk* / RequestEnd frames, then streams the response frames
// back to the browser's http.ResponseWriter.
package clienthttp

import (
	"bufio"
	"fmt"
	"net/http"

	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/frame"
	"github.com/shipproxy/shipproxy/internal/headers"
	"github.com/shipproxy/shipproxy/internal/job"
	"github.com/shipproxy/shipproxy/internal/link"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

// Handler drives one HTTPJob to completion over the shared link.
type Handler struct {
	Link *link.Manager
}

// NewHandler binds a Handler to the client's single link manager.
func NewHandler(l *link.Manager) *Handler {
	return &Handler{Link: l}
}

// Process implements queue.Processor's HTTP half.
func (h *Handler) Process(j *job.HTTPJob) error {
	j.Timer.StartDial()
	r, w, err := h.Link.Ensure()
	j.Timer.EndDial()
	if err != nil {
		return err
	}

	if err := h.sendRequest(w, j); err != nil {
		h.Link.Reset()
		return err
	}

	return h.readResponse(r, j)
}

func (h *Handler) sendRequest(w *bufio.Writer, j *job.HTTPJob) error {
	out := frame.HeaderMap{}
	headers.CopyHeaders(out, j.Header)

	start := frame.RequestStartPayload{
		Method:      j.Method,
		AbsoluteURL: j.AbsoluteURL,
		Header:      out,
	}
	if err := frame.WriteJSONFrame(w, frame.TypeRequestStart, start); err != nil {
		return shiperrors.NewProtocolError("send_request_start", "failed to write RequestStart", err)
	}

	for off := 0; off < len(j.Body); off += constants.RequestChunkSize {
		end := off + constants.RequestChunkSize
		if end > len(j.Body) {
			end = len(j.Body)
		}
		if err := frame.WriteFrame(w, frame.TypeRequestBodyChunk, j.Body[off:end]); err != nil {
			return shiperrors.NewProtocolError("send_request_body", "failed to write RequestBodyChunk", err)
		}
	}

	if err := frame.WriteFrame(w, frame.TypeRequestEnd, nil); err != nil {
		return shiperrors.NewProtocolError("send_request_end", "failed to write RequestEnd", err)
	}
	return nil
}

func (h *Handler) readResponse(r *bufio.Reader, j *job.HTTPJob) error {
	t, payload, err := frame.ReadFrame(r)
	if err != nil {
		h.Link.Reset()
		return shiperrors.NewProtocolError("read_response_start", "failed reading ResponseStart", err)
	}
	if t != frame.TypeResponseStart {
		h.Link.Reset()
		return shiperrors.NewProtocolError("read_response_start", fmt.Sprintf("unexpected frame type %s waiting for ResponseStart", t), nil)
	}

	var rs frame.ResponseStartPayload
	if err := frame.DecodeJSON(payload, &rs); err != nil {
		h.Link.Reset()
		return shiperrors.NewProtocolError("decode_response_start", "malformed ResponseStart JSON", err)
	}

	headers.ApplyToHTTPHeader(j.ResponseWriter.Header(), rs.Header)
	j.ResponseWriter.WriteHeader(int(rs.StatusCode))

	flusher, _ := j.ResponseWriter.(http.Flusher)
	var disconnected error

	for {
		t, payload, err := frame.ReadFrame(r)
		if err != nil {
			h.Link.Reset()
			return shiperrors.NewProtocolError("read_response_body", "failed reading response frame", err)
		}
		switch t {
		case frame.TypeResponseBodyChunk:
			if disconnected == nil && len(payload) > 0 {
				if _, werr := j.ResponseWriter.Write(payload); werr != nil {
					disconnected = shiperrors.NewClientDisconnected("write_response_body", werr)
				} else if flusher != nil {
					flusher.Flush()
				}
			}
		case frame.TypeResponseEnd:
			return disconnected
		default:
			h.Link.Reset()
			return shiperrors.NewProtocolError("read_response_body", fmt.Sprintf("unexpected frame type %s in response", t), nil)
		}
	}
}

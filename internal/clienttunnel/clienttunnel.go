// Package clienttunnel implements the client CONNECT tunnel handler (C6): a
// raw-byte bidirectional splice between the browser's hijacked socket and
// the shared link, held exclusively by this job until both directions
// close. While a tunnel is active no other browser job can use the link —
// that is the price of single-link operation the spec calls for.
package clienttunnel

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/frame"
	"github.com/shipproxy/shipproxy/internal/job"
	"github.com/shipproxy/shipproxy/internal/link"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

// connectionEstablished is the literal bytes written to the browser once
// the offshore server confirms it reached the target.
const connectionEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// Handler drives one ConnectJob to completion over the shared link.
type Handler struct {
	Link *link.Manager
}

// NewHandler binds a Handler to the client's single link manager.
func NewHandler(l *link.Manager) *Handler {
	return &Handler{Link: l}
}

// Process implements queue.Processor's CONNECT half.
func (h *Handler) Process(j *job.ConnectJob) error {
	j.Timer.StartDial()
	r, w, err := h.Link.Ensure()
	j.Timer.EndDial()
	if err != nil {
		return err
	}

	hostPort := normalizeHostPort(j.HostPort)

	if err := frame.WriteJSONFrame(w, frame.TypeConnectOpen, frame.ConnectOpenPayload{Host: hostPort}); err != nil {
		h.Link.Reset()
		return shiperrors.NewProtocolError("send_connect_open", "failed to write ConnectOpen", err)
	}

	t, payload, err := frame.ReadFrame(r)
	if err != nil {
		h.Link.Reset()
		return shiperrors.NewProtocolError("read_connect_open_result", "failed reading ConnectOpenResult", err)
	}
	if t != frame.TypeConnectOpenResult {
		h.Link.Reset()
		return shiperrors.NewProtocolError("read_connect_open_result", fmt.Sprintf("unexpected frame type %s waiting for ConnectOpenResult", t), nil)
	}
	var res frame.ConnectOpenResultPayload
	if err := frame.DecodeJSON(payload, &res); err != nil {
		h.Link.Reset()
		return shiperrors.NewProtocolError("decode_connect_open_result", "malformed ConnectOpenResult JSON", err)
	}
	if !res.OK {
		// The offshore server could not reach the target; the link itself
		// remains usable for the next job.
		return shiperrors.NewTunnelOpenFailed(res.Error)
	}

	if _, err := io.WriteString(j.BrowserConn, connectionEstablished); err != nil {
		return shiperrors.NewClientDisconnected("write_connection_established", err)
	}

	return h.splice(r, w, j)
}

// normalizeHostPort appends the default HTTPS port if host_port carries
// none, per spec scenario S5.
func normalizeHostPort(hostPort string) string {
	if strings.Contains(hostPort, ":") {
		return hostPort
	}
	return hostPort + ":443"
}

// splice runs the bidirectional copy: a reader goroutine moves
// ConnectDataS2C frames to the browser, while the calling goroutine moves
// browser bytes to ConnectDataC2S frames. Only the calling goroutine writes
// to the link during this window, preserving the single-writer discipline.
func (h *Handler) splice(r *bufio.Reader, w *bufio.Writer, j *job.ConnectJob) error {
	s2cDone := make(chan error, 1)
	go func() {
		s2cDone <- h.copyServerToBrowser(r, j)
	}()

	c2sErr := h.copyBrowserToServer(w, j)

	select {
	case err := <-s2cDone:
		if c2sErr != nil {
			return c2sErr
		}
		return err
	case <-time.After(constants.TunnelCloseRendez):
		// Rendezvous timed out: abandon the outstanding direction rather
		// than attempt to re-synchronize a half-closed tunnel.
		h.Link.Reset()
		if c2sErr != nil {
			return c2sErr
		}
		return nil
	}
}

func (h *Handler) copyServerToBrowser(r *bufio.Reader, j *job.ConnectJob) error {
	for {
		t, payload, err := frame.ReadFrame(r)
		if err != nil {
			h.Link.Reset()
			return shiperrors.NewProtocolError("read_connect_data", "failed reading tunnel frame", err)
		}
		switch t {
		case frame.TypeConnectDataS2C:
			if len(payload) > 0 {
				if _, err := j.BrowserConn.Write(payload); err != nil {
					return shiperrors.NewClientDisconnected("write_tunnel_data", err)
				}
			}
		case frame.TypeConnectClose:
			return nil
		default:
			h.Link.Reset()
			return shiperrors.NewProtocolError("read_connect_data", fmt.Sprintf("unexpected frame type %s in CONNECT S2C", t), nil)
		}
	}
}

func (h *Handler) copyBrowserToServer(w *bufio.Writer, j *job.ConnectJob) error {
	buf := make([]byte, constants.TunnelChunkSize)
	for {
		n, err := j.BrowserConn.Read(buf)
		if n > 0 {
			if werr := frame.WriteFrame(w, frame.TypeConnectDataC2S, buf[:n]); werr != nil {
				h.Link.Reset()
				return shiperrors.NewProtocolError("write_connect_data", "failed writing ConnectDataC2S", werr)
			}
		}
		if err != nil {
			if werr := frame.WriteFrame(w, frame.TypeConnectClose, nil); werr != nil {
				h.Link.Reset()
				return shiperrors.NewProtocolError("write_connect_close", "failed writing ConnectClose", werr)
			}
			if err == io.EOF {
				return nil
			}
			return shiperrors.NewClientDisconnected("read_browser_tunnel", err)
		}
	}
}

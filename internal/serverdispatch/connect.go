package serverdispatch

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/frame"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

// DispatchConnect implements C9: opens a raw TCP connection to the CONNECT
// target and bridges it with the link as ConnectDataC2S/ConnectDataS2C
// frames until both directions close.
func (d *Dispatcher) DispatchConnect(r *bufio.Reader, w *bufio.Writer, payload []byte) error {
	var open frame.ConnectOpenPayload
	if err := frame.DecodeJSON(payload, &open); err != nil {
		return shiperrors.NewProtocolError("decode_connect_open", "malformed ConnectOpen JSON", err)
	}

	target := defaultPort(open.Host, "443")

	remote, err := net.DialTimeout("tcp", target, constants.RemoteDialTimeout)
	if err != nil {
		if werr := frame.WriteJSONFrame(w, frame.TypeConnectOpenResult, frame.ConnectOpenResultPayload{OK: false, Error: err.Error()}); werr != nil {
			return shiperrors.NewProtocolError("send_connect_open_result", "failed to write ConnectOpenResult", werr)
		}
		// The link itself remains usable for subsequent requests.
		return nil
	}
	defer remote.Close()

	if err := frame.WriteJSONFrame(w, frame.TypeConnectOpenResult, frame.ConnectOpenResultPayload{OK: true}); err != nil {
		return shiperrors.NewProtocolError("send_connect_open_result", "failed to write ConnectOpenResult", err)
	}

	s2cDone := make(chan error, 1)
	go func() {
		s2cDone <- copyRemoteToLink(remote, w)
	}()

	c2sErr := copyLinkToRemote(r, remote)

	select {
	case err := <-s2cDone:
		if c2sErr != nil {
			return c2sErr
		}
		return err
	case <-time.After(constants.TunnelCloseRendez):
		if c2sErr != nil {
			return c2sErr
		}
		return nil
	}
}

func defaultPort(hostPort, port string) string {
	if strings.Contains(hostPort, ":") {
		return hostPort
	}
	return hostPort + ":" + port
}

// copyRemoteToLink reads from the origin socket and writes ConnectDataS2C
// frames until EOF or error, then sends ConnectClose.
func copyRemoteToLink(remote net.Conn, w *bufio.Writer) error {
	buf := make([]byte, constants.TunnelChunkSize)
	for {
		n, err := remote.Read(buf)
		if n > 0 {
			if werr := frame.WriteFrame(w, frame.TypeConnectDataS2C, buf[:n]); werr != nil {
				return shiperrors.NewProtocolError("send_connect_data", "failed writing ConnectDataS2C", werr)
			}
		}
		if err != nil {
			if werr := frame.WriteFrame(w, frame.TypeConnectClose, nil); werr != nil {
				return shiperrors.NewProtocolError("send_connect_close", "failed writing ConnectClose", werr)
			}
			return nil
		}
	}
}

// copyLinkToRemote reads ConnectDataC2S frames off the link and writes them
// to the origin socket; ConnectClose half-closes the write side and ends
// the loop.
func copyLinkToRemote(r *bufio.Reader, remote net.Conn) error {
	for {
		t, payload, err := frame.ReadFrame(r)
		if err != nil {
			return shiperrors.NewProtocolError("read_connect_data", "failed reading tunnel frame", err)
		}
		switch t {
		case frame.TypeConnectDataC2S:
			if len(payload) > 0 {
				if _, werr := remote.Write(payload); werr != nil {
					return fmt.Errorf("writing to remote: %w", werr)
				}
			}
		case frame.TypeConnectClose:
			if tc, ok := remote.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
			return nil
		default:
			return shiperrors.NewProtocolError("read_connect_data", fmt.Sprintf("unexpected frame type %s in CONNECT", t), nil)
		}
	}
}

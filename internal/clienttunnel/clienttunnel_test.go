package clienttunnel

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/shipproxy/shipproxy/internal/frame"
	"github.com/shipproxy/shipproxy/internal/job"
	"github.com/shipproxy/shipproxy/internal/link"
	"github.com/shipproxy/shipproxy/internal/linkmetrics"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

type dialerFunc func(network, addr string) (net.Conn, error)

func (f dialerFunc) Dial(network, addr string) (net.Conn, error) { return f(network, addr) }

func newPipeHandler() (*Handler, net.Conn) {
	linkClient, linkServer := net.Pipe()
	m := link.NewManager("pipe", dialerFunc(func(network, addr string) (net.Conn, error) {
		return linkClient, nil
	}))
	return NewHandler(m), linkServer
}

func TestNormalizeHostPortAddsDefaultPort(t *testing.T) {
	if got := normalizeHostPort("example.com"); got != "example.com:443" {
		t.Fatalf("expected default port appended, got %s", got)
	}
	if got := normalizeHostPort("example.com:8443"); got != "example.com:8443" {
		t.Fatalf("expected explicit port preserved, got %s", got)
	}
}

func TestProcessBridgesBidirectionalData(t *testing.T) {
	h, linkServer := newPipeHandler()

	browserHandlerSide, browserTestSide := net.Pipe()
	j := &job.ConnectJob{
		HostPort:    "example.com",
		BrowserConn: browserHandlerSide,
		Completion:  job.NewCompletion(),
		Timer:       linkmetrics.NewTimer(),
	}

	done := make(chan error, 1)
	go func() { done <- h.Process(j) }()

	sr := bufio.NewReader(linkServer)
	sw := bufio.NewWriter(linkServer)

	typ, payload, err := frame.ReadFrame(sr)
	if err != nil || typ != frame.TypeConnectOpen {
		t.Fatalf("expected ConnectOpen, got %s, err=%v", typ, err)
	}
	var open frame.ConnectOpenPayload
	if err := frame.DecodeJSON(payload, &open); err != nil {
		t.Fatalf("decode ConnectOpen: %v", err)
	}
	if open.Host != "example.com:443" {
		t.Fatalf("expected normalized host example.com:443, got %s", open.Host)
	}

	if err := frame.WriteJSONFrame(sw, frame.TypeConnectOpenResult, frame.ConnectOpenResultPayload{OK: true}); err != nil {
		t.Fatalf("write ConnectOpenResult: %v", err)
	}

	established := make([]byte, len(connectionEstablished))
	if _, err := io.ReadFull(browserTestSide, established); err != nil {
		t.Fatalf("read 200 line: %v", err)
	}
	if string(established) != connectionEstablished {
		t.Fatalf("unexpected 200 line: %q", established)
	}

	go func() { browserTestSide.Write([]byte("ping")) }()
	typ, payload, err = frame.ReadFrame(sr)
	if err != nil || typ != frame.TypeConnectDataC2S {
		t.Fatalf("expected ConnectDataC2S, got %s, err=%v", typ, err)
	}
	if string(payload) != "ping" {
		t.Fatalf("expected ping, got %q", payload)
	}

	if err := frame.WriteFrame(sw, frame.TypeConnectDataS2C, []byte("pong")); err != nil {
		t.Fatalf("write ConnectDataS2C: %v", err)
	}
	got := make([]byte, 4)
	if _, err := io.ReadFull(browserTestSide, got); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if string(got) != "pong" {
		t.Fatalf("expected pong, got %q", got)
	}

	browserTestSide.Close()
	typ, _, err = frame.ReadFrame(sr)
	if err != nil || typ != frame.TypeConnectClose {
		t.Fatalf("expected ConnectClose after browser EOF, got %s, err=%v", typ, err)
	}
	if err := frame.WriteFrame(sw, frame.TypeConnectClose, nil); err != nil {
		t.Fatalf("write ConnectClose: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Process returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Process did not return in time")
	}
}

func TestProcessReturnsTunnelOpenFailedWithoutResettingLink(t *testing.T) {
	h, linkServer := newPipeHandler()

	browserHandlerSide, browserTestSide := net.Pipe()
	defer browserTestSide.Close()
	j := &job.ConnectJob{
		HostPort:    "blocked.example.com:443",
		BrowserConn: browserHandlerSide,
		Completion:  job.NewCompletion(),
		Timer:       linkmetrics.NewTimer(),
	}

	done := make(chan error, 1)
	go func() { done <- h.Process(j) }()

	sr := bufio.NewReader(linkServer)
	sw := bufio.NewWriter(linkServer)

	typ, _, err := frame.ReadFrame(sr)
	if err != nil || typ != frame.TypeConnectOpen {
		t.Fatalf("expected ConnectOpen, got %s, err=%v", typ, err)
	}
	if err := frame.WriteJSONFrame(sw, frame.TypeConnectOpenResult, frame.ConnectOpenResultPayload{OK: false, Error: "connection refused"}); err != nil {
		t.Fatalf("write ConnectOpenResult: %v", err)
	}

	select {
	case err := <-done:
		if shiperrors.KindOf(err) != shiperrors.KindTunnelOpenFailed {
			t.Fatalf("expected KindTunnelOpenFailed, got %v (%v)", shiperrors.KindOf(err), err)
		}
		if got := h.Link.String(); got != "link(pipe, connected)" {
			t.Fatalf("expected link to stay connected, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Process did not return in time")
	}
}

// Package serverloop implements the server connection loop (C7): for each
// accepted link, it reads one top-level frame at a time and hands control
// to the matching dispatcher. Grounded on the accept-loop shape of
// go-rawhttp's own connection handling conventions, generalized from a
// single-shot request/response to the link's repeating frame stream.
package serverloop

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/shipproxy/shipproxy/internal/frame"
)

// Dispatcher is the subset of serverdispatch.Dispatcher the loop needs.
type Dispatcher interface {
	DispatchHTTP(r *bufio.Reader, w *bufio.Writer, payload []byte) error
	DispatchConnect(r *bufio.Reader, w *bufio.Writer, payload []byte) error
}

// Serve accepts connections on ln forever, running one connection loop per
// accepted link until the listener is closed.
func Serve(ln net.Listener, d Dispatcher) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		log.Printf("[server] link accepted from %s", conn.RemoteAddr())
		go handleLink(conn, d)
	}
}

// handleLink runs C7 for one accepted link: read one frame, dispatch,
// repeat, until a protocol error or the peer closes the connection.
func handleLink(conn net.Conn, d Dispatcher) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		t, payload, err := frame.ReadFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[server] link %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		var dispatchErr error
		switch t {
		case frame.TypeRequestStart:
			dispatchErr = d.DispatchHTTP(r, w, payload)
		case frame.TypeConnectOpen:
			dispatchErr = d.DispatchConnect(r, w, payload)
		default:
			dispatchErr = fmt.Errorf("unexpected top-level frame type %s", t)
		}
		if dispatchErr != nil {
			log.Printf("[server] link %s: %v", conn.RemoteAddr(), dispatchErr)
			return
		}
	}
}

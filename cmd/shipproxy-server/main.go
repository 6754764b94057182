// Command shipproxy-server runs the offshore half of the ship proxy: it
// accepts links from the client and performs the real outbound HTTP and
// TCP I/O the client's frames describe.
package main

import (
	"flag"
	"log"
	"net"

	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/serverdispatch"
	"github.com/shipproxy/shipproxy/internal/serverloop"
)

func main() {
	listen := flag.String("listen", constants.DefaultServerListen, "listen address, e.g. :9090")
	flag.Parse()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("shipproxy-server: listen %s: %v", *listen, err)
	}
	log.Printf("shipproxy-server: listening on %s", *listen)

	dispatcher := serverdispatch.NewDispatcher()
	if err := serverloop.Serve(ln, dispatcher); err != nil {
		log.Fatalf("shipproxy-server: accept loop: %v", err)
	}
}

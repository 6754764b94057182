// Command shipproxy-client runs the local half of the ship proxy: it
// accepts ordinary HTTP/1.1 proxy traffic from browsers and funnels every
// request over a single persistent link to the offshore server.
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/shipproxy/shipproxy/internal/clienthttp"
	"github.com/shipproxy/shipproxy/internal/clientproxy"
	"github.com/shipproxy/shipproxy/internal/clienttunnel"
	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/job"
	"github.com/shipproxy/shipproxy/internal/link"
	"github.com/shipproxy/shipproxy/internal/queue"
)

// dispatcher adapts the separately-built HTTP and CONNECT job handlers to
// queue.Processor, which the worker needs as a single value.
type dispatcher struct {
	http   *clienthttp.Handler
	tunnel *clienttunnel.Handler
}

func (d *dispatcher) ProcessHTTP(j *job.HTTPJob) error       { return d.http.Process(j) }
func (d *dispatcher) ProcessConnect(j *job.ConnectJob) error { return d.tunnel.Process(j) }

func main() {
	listen := flag.String("listen", constants.DefaultClientListen, "listen address, e.g. :8080")
	server := flag.String("server", constants.DefaultServerAddr, "offshore server host:port")
	flag.Parse()

	linkMgr := link.NewManager(*server, nil)
	q := queue.New()
	proc := &dispatcher{
		http:   clienthttp.NewHandler(linkMgr),
		tunnel: clienttunnel.NewHandler(linkMgr),
	}
	worker := queue.NewWorker(q, proc)
	stop := make(chan struct{})
	go worker.Run(stop)

	front := clientproxy.NewFront(q)
	log.Printf("shipproxy-client: listening on %s, offshore=%s", *listen, *server)
	if err := http.ListenAndServe(*listen, front); err != nil {
		log.Fatalf("shipproxy-client: listen %s: %v", *listen, err)
	}
}

// Command unp-discover implements spec.md's discovery sweep scenario (S6):
// broadcasting a (H, "helo") with ack across a local IPv4 /24 and a port
// range, collecting the endpoints whose ack resolved. Bounded concurrency
// is the caller's responsibility (spec.md §5 "Backpressure"); this command
// is the caller.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unprotocol/unp/transport/udp"
	"github.com/unprotocol/unp/unp"
	"github.com/unprotocol/unp/wire"
)

func main() {
	var (
		subnet      = flag.String("subnet", "192.168.1", "first three octets of the IPv4 /24 to sweep")
		startPort   = flag.Int("start-port", 9700, "first port in the sweep range (inclusive)")
		endPort     = flag.Int("end-port", 9700, "last port in the sweep range (inclusive)")
		concurrency = flag.Int("concurrency", 32, "maximum in-flight helo sends")
		timeout     = flag.Duration("ack-timeout", 500*time.Millisecond, "ack_forget_timeout for the sweep")
	)
	flag.Parse()

	sweepID := uuid.NewString()
	log.Printf("discovery sweep %s starting: %s.2-254 ports %d-%d", sweepID, *subnet, *startPort, *endPort)

	sock := udp.New()
	engine := unp.NewEngine(sock,
		unp.WithServerPort(0),
		unp.WithAckForgetTimeout(*timeout),
		unp.WithRetries(0),
	)
	if err := engine.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "discovery: start: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	type result struct {
		endpoint wire.Endpoint
		ok       bool
	}

	var targets []wire.Endpoint
	for host := 2; host <= 254; host++ {
		for port := *startPort; port <= *endPort; port++ {
			targets = append(targets, wire.Endpoint{Addr: fmt.Sprintf("%s.%d", *subnet, host), Port: port})
		}
	}

	sem := make(chan struct{}, *concurrency)
	results := make(chan result, len(targets))
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(target wire.Endpoint) {
			defer wg.Done()
			defer func() { <-sem }()

			err := engine.SendHello(target, "helo", unp.SendOptions{WantAck: true})
			results <- result{endpoint: target, ok: err == nil}
		}(target)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var alive []wire.Endpoint
	for r := range results {
		if r.ok {
			alive = append(alive, r.endpoint)
		}
	}

	log.Printf("discovery sweep %s complete: %d responders", sweepID, len(alive))
	for _, e := range alive {
		fmt.Println(e.String())
	}
}

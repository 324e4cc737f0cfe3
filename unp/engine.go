package unp

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unprotocol/unp/cache"
	"github.com/unprotocol/unp/dispatch"
	"github.com/unprotocol/unp/events"
	"github.com/unprotocol/unp/logx"
	"github.com/unprotocol/unp/metrics"
	"github.com/unprotocol/unp/reassembly"
	"github.com/unprotocol/unp/reliability"
	"github.com/unprotocol/unp/serializer"
	"github.com/unprotocol/unp/transport"
	"github.com/unprotocol/unp/wire"
)

// Engine is one instance of the protocol core bound to a single socket.
// Multiple engines on distinct sockets may coexist within one process
// (spec.md §9 "Global state: None required").
type Engine struct {
	cfg    Config
	socket transport.Socket
	log    logx.Logger

	reliability     *reliability.Manager
	reassembler     *reassembly.Reassembler
	dispatcher      *dispatch.Dispatcher
	serializer      serializer.Serializer
	metricsRegistry *prometheus.Registry

	messageHub *events.Hub[any]
	inbox      *events.Hub[*wire.Message]

	responses *cache.Cache[*responseWaiter]

	closeOnce sync.Once
}

// metricsNamespace is the Prometheus namespace every Engine registers its
// reliability.Manager counters under (spec.md §6 is silent on naming; this
// uses the protocol's own name).
const metricsNamespace = "unp"

// NewEngine constructs an Engine over socket, applying opts on top of
// spec.md §6's defaults. The engine does not bind the socket; call Start.
func NewEngine(socket transport.Socket, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		cfg:        cfg,
		socket:     socket,
		log:        cfg.Logger,
		serializer: cfg.Serializer,
		messageHub: events.NewHub[any](),
		inbox:      events.NewHub[*wire.Message](),
		responses:  cache.New[*responseWaiter](cfg.ResponseForgetTimeout, DefaultCacheSectors),
	}

	e.reliability = reliability.NewManager(socket, reliability.Config{
		Retries:          cfg.Retries,
		AckResendTimeout: cfg.AckResendTimeout,
		AckForgetTimeout: cfg.AckForgetTimeout,
	}, cfg.Logger)

	e.reassembler = reassembly.New(cfg.ReassemblyForgetTimeout, DefaultCacheSectors, cfg.Logger)

	e.metricsRegistry = prometheus.NewRegistry()
	if err := e.metricsRegistry.Register(metrics.NewCollector(e.reliability, metricsNamespace)); err != nil {
		cfg.Logger.Error("unp: registering reliability metrics collector: %v", err)
	}

	e.dispatcher = dispatch.New(
		dispatch.Config{IgnoreWantedAck: cfg.IgnoreWantedAck},
		e.reliability,
		e.reassembler,
		e,
		socket,
		e.messageHub,
		e.inbox,
		cfg.Logger,
	)

	socket.OnMessage(e.onDatagram)
	socket.OnError(func(err error) { e.messageHub.Emit("error", err) })

	return e
}

// Start binds the underlying socket on the configured server_port (0 for
// an ephemeral client-only port).
func (e *Engine) Start() error {
	return e.socket.Bind(e.cfg.ServerPort)
}

// Close releases every resource owned by the engine: outstanding pending
// acks and responses are rejected with a closing error, the reassembly and
// response caches stop rotating, and the socket is closed. Grounded on the
// teacher's Transport.Stop (closes doneCh, stops goroutines).
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.reliability.Close()
		e.reassembler.Close()
		e.rejectAllResponses()
		e.responses.Close()
		err = e.socket.Close()
	})
	return err
}

// OnMessage registers handler for every successfully decoded inbound
// message (unfragmented or reassembled) on the "message" event. Errors are
// delivered separately; see OnError.
func (e *Engine) OnMessage(handler func(any)) {
	e.messageHub.On("message", handler)
}

// OnError registers handler for the "error" event: socket-level
// asynchronous errors and decode errors of malformed inbound frames.
func (e *Engine) OnError(handler func(any)) {
	e.messageHub.On("error", handler)
}

// OnTyped registers handler for the typed inbox event keyed by a
// specific (type, command) pair, e.g. OnTyped(wire.TypeCommand, "ping", ...).
func (e *Engine) OnTyped(t wire.Type, command string, handler func(*wire.Message)) {
	e.inbox.On(fmt.Sprintf("%c%s", t, command), handler)
}

// Metrics returns a snapshot of the engine's reliability counters (packets
// sent/retransmitted, acks received, timeouts, stray acks, average RTT).
func (e *Engine) Metrics() reliability.Metrics {
	return e.reliability.Metrics()
}

// MetricsRegistry returns the Engine-owned prometheus.Registry its
// reliability metrics collector is registered on, for a caller to expose
// via promhttp or merge into a larger registry.
func (e *Engine) MetricsRegistry() *prometheus.Registry {
	return e.metricsRegistry
}

func (e *Engine) onDatagram(buf []byte, sender wire.Endpoint) {
	msg, err := wire.Decode(buf, sender, wire.DecodeOptions{
		ProtocolSignature: e.cfg.ProtocolSignature,
		SessionsEnabled:   e.cfg.EnableSession,
		SupportedCommands: e.cfg.supportedCommandSet(),
	})
	if err != nil {
		e.log.Error("unp: malformed frame from %s: %v", sender.String(), err)
		e.messageHub.Emit("error", err)
		return
	}
	if err := e.dispatcher.Handle(msg); err != nil {
		e.log.Error("unp: dispatch error: %v", err)
	}
}

// nextID assigns a pseudo-random 32-bit correlation id (spec.md §4.7).
func (e *Engine) nextID() uint32 {
	return rand.Uint32()
}

// queryResult is what a responseWaiter's channel carries: either a matched
// response message, or an error (timeout or engine closed) when none arrived.
type queryResult struct {
	msg *wire.Message
	err error
}

type responseWaiter struct {
	mu    sync.Mutex
	done  bool
	ch    chan queryResult
	timer *time.Timer
}

// Resolve implements dispatch.ResponseResolver.
func (e *Engine) Resolve(responseID string, msg *wire.Message) bool {
	w, ok := e.responses.Get(responseID)
	if !ok {
		return false
	}
	e.responses.Delete(responseID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return true
	}
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.ch <- queryResult{msg: msg}
	return true
}

// rejectAllResponses drains every outstanding pending-response waiter with
// ErrClosed, mirroring reliability.Manager.Close's rejection of outstanding
// pending acks, so a SendQuery caller in flight at Close time is released
// immediately instead of blocking until its own response_forget_timeout.
func (e *Engine) rejectAllResponses() {
	e.responses.Range(func(responseID string, w *responseWaiter) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.done {
			return
		}
		w.done = true
		if w.timer != nil {
			w.timer.Stop()
		}
		e.responses.Delete(responseID)
		w.ch <- queryResult{err: ErrClosed}
	})
}

// Package reliability implements the send/ack/retry/timeout state machine
// (spec.md §4.5): per-fragment ack tracking, bounded retransmission, and
// overall timeout, plus generation of ack packets for inbound requests.
package reliability

import (
	"sync"
	"time"

	"github.com/unprotocol/unp/logx"
	"github.com/unprotocol/unp/wire"
)

// Sender is the external collaborator that actually puts bytes on the wire.
// Send errors are logged and treated as soft failures per spec.md §7 — the
// ack mechanism, if any, surfaces failure via timeout.
type Sender interface {
	Send(buf []byte, addr wire.Endpoint) error
}

// Config holds the reliability engine's tunables (spec.md §6).
type Config struct {
	Retries          int
	AckResendTimeout time.Duration
	AckForgetTimeout time.Duration
}

type pendingAck struct {
	mu          sync.Mutex
	done        bool
	retriesLeft int
	buf         []byte
	addr        wire.Endpoint
	sentAt      time.Time
	resendTimer *time.Timer
	forgetTimer *time.Timer
	resultCh    chan error
}

// Manager tracks outstanding acks and drives resend/timeout timers. The
// zero value is not usable; construct with NewManager.
type Manager struct {
	sender  Sender
	cfg     Config
	log     logx.Logger
	metrics metricsTracker

	mu      sync.Mutex
	pending map[string]*pendingAck
	closed  bool
}

// NewManager constructs a reliability Manager bound to sender.
func NewManager(sender Sender, cfg Config, log logx.Logger) *Manager {
	if log == nil {
		log = logx.Nop{}
	}
	return &Manager{
		sender:  sender,
		cfg:     cfg,
		log:     log,
		pending: make(map[string]*pendingAck),
	}
}

// SendFragment hands buf to the socket, and if wantAck is set, tracks a
// pending ack keyed by ackID, arming resend/timeout timers, and blocks
// until the ack arrives, the overall ack_forget_timeout fires (exhausting
// the retries alone does not end the wait), or the manager is closed.
func (m *Manager) SendFragment(ackID string, buf []byte, addr wire.Endpoint, wantAck bool) error {
	if err := m.sender.Send(buf, addr); err != nil {
		m.log.Warn("reliability: send error for %s: %v", ackID, err)
	}
	m.metrics.recordSend()

	if !wantAck {
		return nil
	}

	entry := &pendingAck{
		retriesLeft: m.cfg.Retries,
		buf:         buf,
		addr:        addr,
		sentAt:      time.Now(),
		resultCh:    make(chan error, 1),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pending[ackID] = entry
	m.mu.Unlock()

	if entry.retriesLeft > 0 && m.cfg.AckResendTimeout > 0 {
		entry.resendTimer = time.AfterFunc(m.cfg.AckResendTimeout, func() { m.onResend(ackID, entry) })
	}
	entry.forgetTimer = time.AfterFunc(m.cfg.AckForgetTimeout, func() { m.onForget(ackID, entry) })

	return <-entry.resultCh
}

func (m *Manager) onResend(ackID string, entry *pendingAck) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.done {
		return
	}
	if err := m.sender.Send(entry.buf, entry.addr); err != nil {
		m.log.Warn("reliability: resend error for %s: %v", ackID, err)
	}
	m.metrics.recordRetransmit()
	entry.retriesLeft--
	if entry.retriesLeft > 0 {
		entry.resendTimer = time.AfterFunc(m.cfg.AckResendTimeout, func() { m.onResend(ackID, entry) })
	}
}

func (m *Manager) onForget(ackID string, entry *pendingAck) {
	entry.mu.Lock()
	if entry.done {
		entry.mu.Unlock()
		return
	}
	entry.done = true
	entry.mu.Unlock()

	m.mu.Lock()
	delete(m.pending, ackID)
	m.mu.Unlock()

	if entry.resendTimer != nil {
		entry.resendTimer.Stop()
	}
	m.metrics.recordFailure()
	m.log.Debug("reliability: ack %s timed out", ackID)
	entry.resultCh <- ErrTimeout
}

// HandleAck resolves the pending ack keyed by ackID, if any. It reports
// whether a matching entry was found; the dispatcher logs a "stray ack"
// when it returns false (spec.md §4.6).
func (m *Manager) HandleAck(ackID string) bool {
	m.mu.Lock()
	entry, ok := m.pending[ackID]
	if ok {
		delete(m.pending, ackID)
	}
	m.mu.Unlock()

	if !ok {
		m.metrics.recordStrayAck()
		return false
	}

	entry.mu.Lock()
	if entry.done {
		entry.mu.Unlock()
		return true
	}
	entry.done = true
	entry.mu.Unlock()

	if entry.resendTimer != nil {
		entry.resendTimer.Stop()
	}
	if entry.forgetTimer != nil {
		entry.forgetTimer.Stop()
	}
	m.metrics.recordAck(time.Since(entry.sentAt))
	entry.resultCh <- nil
	return true
}

// SendFragments sends every buffer in bufs, deriving each fragment's ack_id
// from msg, and — if msg.WantAck — waits for every per-fragment ack to
// resolve in parallel, succeeding only if all of them do (spec.md §4.5: "the
// overall send succeeds iff every per-fragment ack succeeds").
func (m *Manager) SendFragments(bufs [][]byte, addr wire.Endpoint, msg *wire.Message) error {
	fragmented := len(bufs) > 1

	if !msg.WantAck {
		for _, buf := range bufs {
			if err := m.sender.Send(buf, addr); err != nil {
				m.log.Warn("reliability: send error: %v", err)
			}
			m.metrics.recordSend()
		}
		return nil
	}

	errCh := make(chan error, len(bufs))
	var wg sync.WaitGroup
	for i, buf := range bufs {
		ackID := wire.AckID(addr, msg.Type, msg.Command, msg.ID, fragmented, uint16(i), uint16(len(bufs)))
		wg.Add(1)
		go func(ackID string, buf []byte) {
			defer wg.Done()
			errCh <- m.SendFragment(ackID, buf, addr, true)
		}(ackID, buf)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// Metrics returns a snapshot of the engine's counters.
func (m *Manager) Metrics() Metrics {
	return m.metrics.snapshot()
}

// Close rejects every outstanding pending ack and stops accepting new sends.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	pending := m.pending
	m.pending = make(map[string]*pendingAck)
	m.mu.Unlock()

	for _, entry := range pending {
		entry.mu.Lock()
		if !entry.done {
			entry.done = true
			if entry.resendTimer != nil {
				entry.resendTimer.Stop()
			}
			if entry.forgetTimer != nil {
				entry.forgetTimer.Stop()
			}
			entry.resultCh <- ErrClosed
		}
		entry.mu.Unlock()
	}
}

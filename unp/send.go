package unp

import (
	"fmt"
	"time"

	"github.com/unprotocol/unp/reliability"
	"github.com/unprotocol/unp/serializer"
	"github.com/unprotocol/unp/wire"
)

// SendOptions controls a single send call.
type SendOptions struct {
	WantAck    bool
	Compressed bool
	Params     serializer.Params
}

// buildAndSend serializes data (if any) into msg, encodes it with the
// configured MTU, and drives it through the reliability engine toward
// target. msg.Sender is left unset, per spec.md §3 ("sender ... set on
// receive, unset on send") — target is threaded separately instead.
func (e *Engine) buildAndSend(msg *wire.Message, target wire.Endpoint, data interface{}, opts SendOptions) error {
	msg.ProtocolSignature = e.cfg.ProtocolSignature
	msg.WantAck = opts.WantAck
	msg.FragmentsTotal = 1

	if data != nil {
		params := opts.Params
		if params == (serializer.Params{}) {
			params = e.cfg.paramsFor(msg.Type, msg.Command)
		}
		encoded, err := e.serializer.Serialize(data, params)
		if err != nil {
			return fmt.Errorf("unp: serialize payload: %w", err)
		}
		if opts.Compressed {
			encoded, err = serializer.Compress(encoded)
			if err != nil {
				return fmt.Errorf("unp: compress payload: %w", err)
			}
			msg.Compressed = true
		}
		msg.HasData = true
		msg.EncodedPayload = encoded
	}

	if err := msg.Validate(); err != nil {
		return err
	}

	bufs, err := wire.Encode(msg, e.cfg.MaxPacketSize)
	if err != nil {
		return err
	}
	return e.reliability.SendFragments(bufs, target, msg)
}

// SendCommand sends a one-way, application-defined verb to target.
func (e *Engine) SendCommand(target wire.Endpoint, command string, data interface{}, opts SendOptions) error {
	msg := &wire.Message{Type: wire.TypeCommand, Command: command, ID: e.nextID()}
	return e.buildAndSend(msg, target, data, opts)
}

// SendHello sends a user-initiated hello (type H) to target, e.g. for
// session establishment handshakes this core does not implement itself.
func (e *Engine) SendHello(target wire.Endpoint, command string, opts SendOptions) error {
	msg := &wire.Message{Type: wire.TypeHello, Command: command, ID: e.nextID()}
	return e.buildAndSend(msg, target, nil, opts)
}

// SendDiscoveryHello sends a discovery hello (type h). The cmd/unp-discover
// sweep does not use it; it sends type H through SendHello.
func (e *Engine) SendDiscoveryHello(target wire.Endpoint, command string, opts SendOptions) error {
	msg := &wire.Message{Type: wire.TypeDiscoveryHello, Command: command, ID: e.nextID()}
	return e.buildAndSend(msg, target, nil, opts)
}

// SendKeepAlive sends a keep-alive (type K) to target.
func (e *Engine) SendKeepAlive(target wire.Endpoint, opts SendOptions) error {
	msg := &wire.Message{Type: wire.TypeKeepAlive, Command: "keep", ID: e.nextID()}
	return e.buildAndSend(msg, target, nil, opts)
}

// SendQuery sends a query (type Q) to target and blocks until a matching
// response arrives or response_forget_timeout elapses (spec.md §4.7).
func (e *Engine) SendQuery(target wire.Endpoint, command string, data interface{}, opts SendOptions) (*wire.Message, error) {
	id := e.nextID()
	responseID := wire.ResponseID(target, wire.TypeQuery, command, id)

	w := &responseWaiter{ch: make(chan queryResult, 1)}
	e.responses.Set(responseID, w)
	w.timer = time.AfterFunc(e.cfg.ResponseForgetTimeout, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.done {
			return
		}
		w.done = true
		e.responses.Delete(responseID)
		w.ch <- queryResult{err: reliability.ErrTimeout}
	})

	msg := &wire.Message{Type: wire.TypeQuery, Command: command, ID: id}
	if err := e.buildAndSend(msg, target, data, opts); err != nil {
		w.mu.Lock()
		if !w.done {
			w.done = true
			w.timer.Stop()
			e.responses.Delete(responseID)
		}
		w.mu.Unlock()
		return nil, err
	}

	result := <-w.ch
	if result.err != nil {
		return nil, fmt.Errorf("unp: query %s to %s: %w", command, target.String(), result.err)
	}
	return result.msg, nil
}

// SendResponseFor answers incoming with a Response (type R) that echoes
// incoming's id and targets incoming's sender.
func (e *Engine) SendResponseFor(incoming *wire.Message, data interface{}, opts SendOptions) error {
	msg := &wire.Message{
		Type:    wire.TypeResponse,
		Command: incoming.Command,
		ID:      incoming.ID,
	}
	return e.buildAndSend(msg, incoming.Sender, data, opts)
}

// Package dispatch implements message classification and routing (spec.md
// §4.6): resolving acks, generating acks for inbound requests, feeding
// fragments to the reassembly engine, correlating responses to pending
// queries, and emitting decoded messages to the generic and typed event
// hubs.
package dispatch

import (
	"fmt"

	"github.com/unprotocol/unp/events"
	"github.com/unprotocol/unp/logx"
	"github.com/unprotocol/unp/reliability"
	"github.com/unprotocol/unp/wire"
)

// AckHandler resolves a pending ack keyed by ack_id, reporting whether a
// matching entry existed. Implemented by *reliability.Manager.
type AckHandler interface {
	HandleAck(ackID string) bool
}

// Reassembler accumulates a fragment, returning the reconstructed message
// once complete (nil, nil while incomplete). Implemented by
// *reassembly.Reassembler.
type Reassembler interface {
	Accept(fragment *wire.Message) (*wire.Message, error)
}

// ResponseResolver resolves a pending response waiter keyed by response_id,
// reporting whether a matching entry existed. Implemented by the engine's
// pending-response bookkeeping.
type ResponseResolver interface {
	Resolve(responseID string, msg *wire.Message) bool
}

// Config controls dispatcher behavior per spec.md §6.
type Config struct {
	IgnoreWantedAck bool
}

// Dispatcher classifies inbound decoded messages and routes them.
type Dispatcher struct {
	cfg        Config
	ackHandler AckHandler
	reasm      Reassembler
	responses  ResponseResolver
	sender     reliability.Sender
	messageHub *events.Hub[any]
	inbox      *events.Hub[*wire.Message]
	log        logx.Logger
}

// New constructs a Dispatcher. messageHub carries "message" (payload
// *wire.Message) and "error" (payload error) events; inbox carries
// type+command-keyed *wire.Message events.
func New(
	cfg Config,
	ackHandler AckHandler,
	reasm Reassembler,
	responses ResponseResolver,
	sender reliability.Sender,
	messageHub *events.Hub[any],
	inbox *events.Hub[*wire.Message],
	log logx.Logger,
) *Dispatcher {
	if log == nil {
		log = logx.Nop{}
	}
	return &Dispatcher{
		cfg:        cfg,
		ackHandler: ackHandler,
		reasm:      reasm,
		responses:  responses,
		sender:     sender,
		messageHub: messageHub,
		inbox:      inbox,
		log:        log,
	}
}

// Handle classifies msg and performs the routing described by spec.md
// §4.6. It never returns an error to the caller for decode-adjacent
// failures (malformed/stray anomalies are logged and absorbed, per
// spec.md §7's propagation policy); failures to encode or send the
// outbound ack and fragment drops are logged too, so every current path
// returns nil.
func (d *Dispatcher) Handle(msg *wire.Message) error {
	if msg.IsAck {
		ackID := wire.AckID(msg.Sender, msg.Type, msg.Command, msg.ID, msg.Fragmented, msg.FragmentIndex, msg.FragmentsTotal)
		if !d.ackHandler.HandleAck(ackID) {
			d.log.Warn("dispatch: stray ack %s", ackID)
		}
		return nil
	}

	if msg.WantAck && !d.cfg.IgnoreWantedAck {
		if err := d.sendAck(msg); err != nil {
			d.log.Error("dispatch: failed to send ack: %v", err)
		}
	}

	if !msg.Fragmented {
		return d.handleFull(msg)
	}

	reassembled, err := d.reasm.Accept(msg)
	if err != nil {
		d.log.Error("dispatch: dropping fragment: %v", err)
		return nil
	}
	if reassembled == nil {
		return nil
	}
	return d.handleFull(reassembled)
}

func (d *Dispatcher) handleFull(msg *wire.Message) error {
	if msg.Type == wire.TypeResponse {
		responseID := wire.ResponseID(msg.Sender, msg.Type, msg.Command, msg.ID)
		if !d.responses.Resolve(responseID, msg) {
			d.log.Warn("dispatch: stray response %s", responseID)
		}
	}

	d.messageHub.Emit("message", msg)
	d.inbox.Emit(inboxKey(msg), msg)
	return nil
}

// inboxKey is the "type+command" concatenation the typed inbox is keyed by.
func inboxKey(msg *wire.Message) string {
	return fmt.Sprintf("%c%s", msg.Type, msg.Command)
}

func (d *Dispatcher) sendAck(msg *wire.Message) error {
	ack := reliability.BuildAck(msg)
	bufs, err := wire.Encode(ack, 0)
	if err != nil {
		return err
	}
	return d.sender.Send(bufs[0], msg.Sender)
}

// Package transport defines the Socket collaborator the engine consumes
// (spec.md §6): the UDP socket itself is out of core scope, referenced only
// through this interface.
package transport

import "github.com/unprotocol/unp/wire"

// MessageHandler receives a raw inbound datagram and its sender.
type MessageHandler func(buf []byte, sender wire.Endpoint)

// ErrorHandler receives an asynchronous socket error.
type ErrorHandler func(err error)

// ListeningHandler is invoked once the socket is bound and ready.
type ListeningHandler func()

// Socket is the external collaborator that actually owns the UDP conn. The
// core treats Send errors as soft failures (spec.md §7) — a failed Send is
// recorded but the pending ack mechanism, if any, is what surfaces it to
// the caller, via timeout.
type Socket interface {
	Bind(port int) error
	Send(buf []byte, addr wire.Endpoint) error
	OnMessage(handler MessageHandler)
	OnError(handler ErrorHandler)
	OnListening(handler ListeningHandler)
	Close() error
}

// BaseSocket holds the three callback slots every Socket implementation
// needs, mirroring the teacher's BaseTransport handler-bookkeeping pattern.
type BaseSocket struct {
	messageHandler   MessageHandler
	errorHandler     ErrorHandler
	listeningHandler ListeningHandler
}

func (b *BaseSocket) OnMessage(handler MessageHandler)     { b.messageHandler = handler }
func (b *BaseSocket) OnError(handler ErrorHandler)         { b.errorHandler = handler }
func (b *BaseSocket) OnListening(handler ListeningHandler) { b.listeningHandler = handler }

// EmitMessage invokes the registered MessageHandler, if any. Concrete
// Socket implementations call this from their receive loop.
func (b *BaseSocket) EmitMessage(buf []byte, sender wire.Endpoint) {
	if b.messageHandler != nil {
		b.messageHandler(buf, sender)
	}
}

// EmitError invokes the registered ErrorHandler, if any.
func (b *BaseSocket) EmitError(err error) {
	if b.errorHandler != nil {
		b.errorHandler(err)
	}
}

// EmitListening invokes the registered ListeningHandler, if any.
func (b *BaseSocket) EmitListening() {
	if b.listeningHandler != nil {
		b.listeningHandler()
	}
}

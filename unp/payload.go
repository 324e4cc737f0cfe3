package unp

import (
	"fmt"

	"github.com/unprotocol/unp/serializer"
	"github.com/unprotocol/unp/wire"
)

// DecodePayload decodes msg's EncodedPayload into target (a non-nil
// pointer), reversing compression first if msg.Compressed. This is the
// application's half of the serializer collaborator (spec.md §6): the wire
// codec and dispatcher leave an inbound message's payload encoded (lazy
// decode, spec.md §4.1), and a handler calls DecodePayload once it knows
// the concrete Go type to decode into.
//
// On success msg flips from its encoded to its decoded form (spec.md §3's
// "at most one form is current at a time" invariant): DecodedPayload is
// set to target, EncodedPayload is cleared, and HasDecoded becomes true.
// Calling DecodePayload on a message with HasData false is a no-op.
func (e *Engine) DecodePayload(msg *wire.Message, target interface{}, params serializer.Params) error {
	if !msg.HasData {
		return nil
	}

	if params == (serializer.Params{}) {
		params = e.cfg.paramsFor(msg.Type, msg.Command)
	}

	data := msg.EncodedPayload
	if msg.Compressed {
		decompressed, err := serializer.Decompress(data)
		if err != nil {
			return fmt.Errorf("unp: decompress payload: %w", err)
		}
		data = decompressed
	}

	if err := e.serializer.Unserialize(data, params, target); err != nil {
		return fmt.Errorf("unp: unserialize payload: %w", err)
	}

	msg.DecodedPayload = target
	msg.EncodedPayload = nil
	msg.HasDecoded = true
	return nil
}

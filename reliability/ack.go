package reliability

import "github.com/unprotocol/unp/wire"

// BuildAck constructs the ack message the engine sends back for an inbound
// message that carried WANT_ACK (spec.md §4.5 "Ack generation"): same
// protocol_signature/type/command/id, IS_ACK set, no payload. If the
// originating message was a fragment, the ack echoes its fragment_index/
// fragments_total so per-fragment retransmission stays addressable.
func BuildAck(msg *wire.Message) *wire.Message {
	ack := &wire.Message{
		ProtocolSignature: msg.ProtocolSignature,
		Type:              msg.Type,
		Command:           msg.Command,
		ID:                msg.ID,
		IsAck:             true,
		FragmentsTotal:    1,
	}
	if msg.Fragmented {
		ack.Fragmented = true
		ack.FragmentIndex = msg.FragmentIndex
		ack.FragmentsTotal = msg.FragmentsTotal
	}
	return ack
}

package wire

import "fmt"

// idFragment renders the 32-bit id as 8 hex digits so identifiers built by
// concatenation never become ambiguous with the command or the trailing
// fragment suffix (spec.md §4.2 only requires "collision-resistant in
// practice", not a specific encoding).
func idFragment(id uint32) string {
	return fmt.Sprintf("%08x", id)
}

// AckID derives the identifier used to key a pending-ack cache entry. If
// fragmented, it addresses one specific fragment of the message.
func AckID(sender Endpoint, t Type, command string, id uint32, fragmented bool, fragIndex, fragsTotal uint16) string {
	base := fmt.Sprintf("%s:%c%s%s", sender.String(), t, command, idFragment(id))
	if fragmented {
		return fmt.Sprintf("%s:%d/%d", base, fragIndex, fragsTotal)
	}
	return base
}

// ReassemblyID derives the identifier used to key a pending-reassembly
// cache entry.
func ReassemblyID(sender Endpoint, t Type, command string, id uint32, fragsTotal uint16) string {
	return fmt.Sprintf("%s:%c%s%s/%d", sender.String(), t, command, idFragment(id), fragsTotal)
}

// ResponseID derives the identifier used to key a pending-response cache
// entry, keyed by the *response* type derived from the request type (Q -> R).
func ResponseID(sender Endpoint, requestType Type, command string, id uint32) string {
	rt, ok := ResponseTypeFor[requestType]
	if !ok {
		rt = requestType
	}
	return fmt.Sprintf("%s:%c%s%s", sender.String(), rt, command, idFragment(id))
}

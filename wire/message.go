// Package wire implements the UNP frame codec: the binary layout of a
// message, its flags, and the identity helpers derived from a message and
// its peer endpoint.
package wire

import "fmt"

// Flag is a bit in the 16-bit flags field of the frame header.
type Flag uint16

const (
	FlagWantAck    Flag = 1 << 0
	FlagIsAck      Flag = 1 << 1
	FlagIsNack     Flag = 1 << 2
	FlagHasData    Flag = 1 << 3
	FlagFragmented Flag = 1 << 4
	FlagCompressed Flag = 1 << 5
	FlagEncrypted  Flag = 1 << 6
	FlagSession    Flag = 1 << 7
)

// Type is the single-byte message role.
type Type byte

const (
	TypeCommand         Type = 'C'
	TypeQuery           Type = 'Q'
	TypeResponse        Type = 'R'
	TypeEvent           Type = 'E'
	TypeKeepAlive       Type = 'K'
	TypeHello           Type = 'H'
	TypeDiscoveryHello  Type = 'h'
	// Reserved for future use; accepted by nothing in this engine.
	TypeSession Type = 'S'
	TypeFrame   Type = 'F'
	typeK       Type = 'k'
	typeS       Type = 's'
)

// ValidTypes is the closed alphabet of currently dispatchable types.
var ValidTypes = map[Type]bool{
	TypeCommand:        true,
	TypeQuery:          true,
	TypeResponse:       true,
	TypeEvent:          true,
	TypeKeepAlive:      true,
	TypeHello:          true,
	TypeDiscoveryHello: true,
}

// ResponseTypeFor maps a request type to the type its response carries.
// Only Q -> R is defined; the lowercase reserved pair is recorded for
// documentation purposes but is never produced by this engine.
var ResponseTypeFor = map[Type]Type{
	TypeQuery: TypeResponse,
	typeS:     typeK,
}

// Wire layout constants, spec §6.
const (
	MinHeaderSize       = 15
	SessionSize         = 8
	FragmentHeaderSize  = 4 // fragment_index + fragments_total
	MinDataFragmentSize = 16
	FragmentsMax        = 65535

	IPv4MTU        = 576
	IPv6MTU        = 1280
	IPUDPOverhead  = 68
)

// DefaultProtocolSignature is the 3-byte signature used when none is configured.
const DefaultProtocolSignature = "UNP"

// Endpoint identifies a UDP peer.
type Endpoint struct {
	Addr string // dotted-quad, hex, or any textual host form; bracketed by String if IPv6
	Port int
	IPv6 bool
}

// String renders the endpoint the way identity helpers expect: bracketed
// address for IPv6, bare otherwise, both followed by ":port".
func (e Endpoint) String() string {
	if e.IPv6 {
		return fmt.Sprintf("[%s]:%d", e.Addr, e.Port)
	}
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// Message is the logical unit exchanged by the engine. At most one of
// DecodedPayload / EncodedPayload is current — see HasDecoded.
type Message struct {
	ProtocolSignature string
	Type              Type
	Command           string
	ID                uint32

	WantAck     bool
	IsAck       bool
	IsNack      bool
	Fragmented  bool
	Reassembled bool
	Compressed  bool
	Encrypted   bool
	HasData     bool

	SessionID [SessionSize]byte
	HasSession bool

	FragmentIndex  uint16
	FragmentsTotal uint16

	// DecodedPayload holds an application-level value when HasDecoded is
	// true; EncodedPayload holds the serialized (and possibly compressed)
	// byte form otherwise.
	DecodedPayload interface{}
	EncodedPayload []byte
	HasDecoded     bool

	Sender Endpoint
}

// Validate checks the invariants from spec.md §3, including that Command is
// exactly 4 alphanumeric ASCII bytes. The length of ProtocolSignature is not
// checked here or by the codec.
func (m *Message) Validate() error {
	if m.IsAck && m.WantAck {
		return fmt.Errorf("%w: is_ack and want_ack both set", ErrInvalidMessage)
	}
	if (m.IsAck || m.IsNack) && m.HasData {
		return fmt.Errorf("%w: ack/nack must not carry data", ErrInvalidMessage)
	}
	if (m.Compressed || m.Encrypted) && !m.HasData {
		return fmt.Errorf("%w: compressed/encrypted requires has_data", ErrInvalidMessage)
	}
	if m.Fragmented && m.FragmentIndex >= m.FragmentsTotal {
		return fmt.Errorf("%w: fragment_index >= fragments_total", ErrInvalidMessage)
	}
	if !ValidTypes[m.Type] {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if len(m.Command) != 4 {
		return fmt.Errorf("%w: command must be 4 bytes, got %d", ErrInvalidMessage, len(m.Command))
	}
	for _, c := range []byte(m.Command) {
		if !isAlphaNumeric(c) {
			return fmt.Errorf("%w: command must be alphanumeric ASCII", ErrInvalidMessage)
		}
	}
	return nil
}

func isAlphaNumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// flags packs the boolean fields into the wire flags bitmask.
func (m *Message) flags() uint16 {
	var f Flag
	if m.WantAck {
		f |= FlagWantAck
	}
	if m.IsAck {
		f |= FlagIsAck
	}
	if m.IsNack {
		f |= FlagIsNack
	}
	if m.HasData {
		f |= FlagHasData
	}
	if m.Fragmented {
		f |= FlagFragmented
	}
	if m.Compressed {
		f |= FlagCompressed
	}
	if m.Encrypted {
		f |= FlagEncrypted
	}
	if m.HasSession {
		f |= FlagSession
	}
	return uint16(f)
}

func applyFlags(m *Message, raw uint16) {
	f := Flag(raw)
	m.WantAck = f&FlagWantAck != 0
	m.IsAck = f&FlagIsAck != 0
	m.IsNack = f&FlagIsNack != 0
	m.HasData = f&FlagHasData != 0
	m.Fragmented = f&FlagFragmented != 0
	m.Compressed = f&FlagCompressed != 0
	m.Encrypted = f&FlagEncrypted != 0
	m.HasSession = f&FlagSession != 0
}

package wire

import "errors"

var (
	// ErrShortBuffer is returned when a buffer is too small to hold the
	// fixed preamble.
	ErrShortBuffer = errors.New("wire: buffer shorter than minimum header size")
	// ErrBadSeparator is returned when the preamble separator byte is nonzero.
	ErrBadSeparator = errors.New("wire: separator byte must be zero")
	// ErrBadSignature is returned on protocol signature mismatch.
	ErrBadSignature = errors.New("wire: protocol signature mismatch")
	// ErrUnknownType is returned when the type byte is outside the closed alphabet.
	ErrUnknownType = errors.New("wire: unknown message type")
	// ErrUnsupportedCommand is returned when supported_commands is non-empty
	// and the decoded command is not a member.
	ErrUnsupportedCommand = errors.New("wire: command not in allow-list")
	// ErrIllegalFlags is returned for flag combinations forbidden by the
	// invariants in spec (e.g. want_ack with is_ack, data flags without has_data).
	ErrIllegalFlags = errors.New("wire: illegal flag combination")
	// ErrLengthMismatch is returned when a has_data message has no payload
	// bytes after its header, or a no-data message has trailing bytes.
	ErrLengthMismatch = errors.New("wire: payload length mismatch")
	// ErrSessionDisabled is returned when the SESSION flag is set but
	// sessions are not enabled for this decoder.
	ErrSessionDisabled = errors.New("wire: session flag set but sessions disabled")
	// ErrInvalidMessage is returned by Message.Validate for invariant violations.
	ErrInvalidMessage = errors.New("wire: invalid message")
	// ErrConfig is returned at encode time when max_packet_size cannot
	// accommodate the minimum fragment.
	ErrConfig = errors.New("wire: max_packet_size too small for minimum fragment")
)

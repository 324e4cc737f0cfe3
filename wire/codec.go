package wire

import (
	"encoding/binary"
	"fmt"
)

// DecodeOptions configures Decode's validation beyond the fixed wire layout.
type DecodeOptions struct {
	ProtocolSignature string          // defaults to DefaultProtocolSignature if empty
	SessionsEnabled   bool
	SupportedCommands map[string]bool // nil or empty means "allow everything"
}

// Decode parses one datagram buffer into a Message. Payload is left encoded
// (lazy decode) per spec.md §4.1. The returned message's Sender is set to
// sender, and EncodedPayload (if HasData) is a copy of the trailing bytes.
func Decode(buf []byte, sender Endpoint, opts DecodeOptions) (*Message, error) {
	sig := opts.ProtocolSignature
	if sig == "" {
		sig = DefaultProtocolSignature
	}

	if len(buf) < MinHeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortBuffer, len(buf))
	}
	if buf[3] != 0 {
		return nil, ErrBadSeparator
	}
	if string(buf[0:3]) != sig {
		return nil, fmt.Errorf("%w: got %q want %q", ErrBadSignature, buf[0:3], sig)
	}

	rawFlags := binary.BigEndian.Uint16(buf[4:6])
	t := Type(buf[6])
	if !ValidTypes[t] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	command := string(buf[7:11])
	id := binary.BigEndian.Uint32(buf[11:15])

	m := &Message{
		ProtocolSignature: sig,
		Type:              t,
		Command:           command,
		ID:                id,
		FragmentsTotal:    1,
		Sender:            sender,
	}
	applyFlags(m, rawFlags)

	if m.WantAck && (m.IsAck || m.IsNack) {
		return nil, fmt.Errorf("%w: want_ack with is_ack/is_nack", ErrIllegalFlags)
	}
	if (m.Compressed || m.Encrypted) && !m.HasData {
		return nil, fmt.Errorf("%w: compressed/encrypted without has_data", ErrIllegalFlags)
	}

	offset := MinHeaderSize

	if m.HasSession {
		if !opts.SessionsEnabled {
			return nil, ErrSessionDisabled
		}
		if len(buf) < offset+SessionSize {
			return nil, fmt.Errorf("%w: truncated session block", ErrShortBuffer)
		}
		copy(m.SessionID[:], buf[offset:offset+SessionSize])
		offset += SessionSize
	}

	if m.Fragmented {
		if len(buf) < offset+FragmentHeaderSize {
			return nil, fmt.Errorf("%w: truncated fragment block", ErrShortBuffer)
		}
		m.FragmentIndex = binary.BigEndian.Uint16(buf[offset : offset+2])
		m.FragmentsTotal = binary.BigEndian.Uint16(buf[offset+2 : offset+4])
		offset += FragmentHeaderSize
		if m.FragmentIndex >= m.FragmentsTotal {
			return nil, fmt.Errorf("%w: fragment_index >= fragments_total", ErrIllegalFlags)
		}
	}

	if m.HasData {
		if offset >= len(buf) {
			return nil, fmt.Errorf("%w: has_data set but no payload bytes remain", ErrLengthMismatch)
		}
		payload := make([]byte, len(buf)-offset)
		copy(payload, buf[offset:])
		m.EncodedPayload = payload
	} else if offset != len(buf) {
		return nil, fmt.Errorf("%w: no-data message has trailing bytes", ErrLengthMismatch)
	}

	if len(opts.SupportedCommands) > 0 && !opts.SupportedCommands[command] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, command)
	}

	return m, nil
}

// headerSize returns the serialized header length for a message, given
// whether it ends up fragmented.
func headerSize(m *Message, fragmented bool) int {
	size := MinHeaderSize
	if m.HasSession {
		size += SessionSize
	}
	if fragmented {
		size += FragmentHeaderSize
	}
	return size
}

// Encode serializes m into one or more datagram buffers. m.EncodedPayload
// must already hold the serialized (and, if Compressed, compressed) payload
// bytes when m.HasData is true — Encode only performs framing and
// fragmentation, per spec.md's separation of the wire codec from the
// external serializer collaborator. maxPacketSize of 0 disables fragmentation.
func Encode(m *Message, maxPacketSize int) ([][]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	payload := m.EncodedPayload
	if !m.HasData {
		payload = nil
	}

	unfragmentedSize := headerSize(m, m.Fragmented) + len(payload)
	if maxPacketSize <= 0 || unfragmentedSize <= maxPacketSize {
		// m may already be fragmented in its own right (e.g. an ack that
		// addresses one specific fragment of a prior message, spec.md §4.5);
		// carry its fragment coordinates through rather than clearing them.
		buf := encodeOne(m, payload, m.Fragmented, m.FragmentIndex, m.FragmentsTotal)
		return [][]byte{buf}, nil
	}

	fragHeaderSize := headerSize(m, true)
	maxDataPerFragment := maxPacketSize - fragHeaderSize
	if maxDataPerFragment <= MinDataFragmentSize {
		return nil, fmt.Errorf("%w: max_packet_size=%d header_size=%d", ErrConfig, maxPacketSize, fragHeaderSize)
	}

	fragmentsTotal := ceilDiv(len(payload), maxDataPerFragment)
	if fragmentsTotal == 0 {
		fragmentsTotal = 1
	}
	if fragmentsTotal > FragmentsMax {
		return nil, fmt.Errorf("%w: fragments_total %d exceeds FRAGMENTS_MAX", ErrConfig, fragmentsTotal)
	}
	fragmentSize := ceilDiv(len(payload), fragmentsTotal)

	buffers := make([][]byte, 0, fragmentsTotal)
	for i := 0; i < fragmentsTotal; i++ {
		start := i * fragmentSize
		end := start + fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		buffers = append(buffers, encodeOne(m, payload[start:end], true, uint16(i), uint16(fragmentsTotal)))
	}
	return buffers, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func encodeOne(m *Message, payload []byte, fragmented bool, fragIndex, fragsTotal uint16) []byte {
	size := headerSize(m, fragmented) + len(payload)
	buf := make([]byte, size)

	sig := m.ProtocolSignature
	if sig == "" {
		sig = DefaultProtocolSignature
	}
	copy(buf[0:3], sig)
	buf[3] = 0

	mm := *m
	mm.Fragmented = fragmented
	binary.BigEndian.PutUint16(buf[4:6], mm.flags())
	buf[6] = byte(m.Type)
	copy(buf[7:11], m.Command)
	binary.BigEndian.PutUint32(buf[11:15], m.ID)

	offset := MinHeaderSize
	if m.HasSession {
		copy(buf[offset:offset+SessionSize], m.SessionID[:])
		offset += SessionSize
	}
	if fragmented {
		binary.BigEndian.PutUint16(buf[offset:offset+2], fragIndex)
		binary.BigEndian.PutUint16(buf[offset+2:offset+4], fragsTotal)
		offset += FragmentHeaderSize
	}
	if len(payload) > 0 {
		copy(buf[offset:], payload)
	}
	return buf
}

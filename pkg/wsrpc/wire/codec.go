package wire

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidFrame is returned by Decode when a byte slice is not a
// well-formed frame of either encoding this codec understands.
var ErrInvalidFrame = errors.New("wire: invalid frame")

const frameVersion byte = 1

// Encode serializes a Message into the binary framed format. The header
// is fixed-width and big-endian; every variable-length section is
// length-prefixed so Decode never has to guess a boundary.
//
// Layout: version | requestId(8) | variant(1) | sessionIdLen(2) |
// routeLen(2) | statusLen(2) | subscriptionIdLen(2) | payloadLen(4) |
// sessionId | route | status | subscriptionId | payload
func Encode(msg *Message) []byte {
	sessionID := []byte(msg.SessionID)
	route := []byte(msg.Route)
	status := []byte(msg.Status)
	subID := []byte(msg.SubscriptionID)
	payload := msg.Payload

	const hdr = 1 + 8 + 1 + 2 + 2 + 2 + 2 + 4
	total := hdr + len(sessionID) + len(route) + len(status) + len(subID) + len(payload)

	frame := make([]byte, total)
	frame[0] = frameVersion
	binary.BigEndian.PutUint64(frame[1:9], msg.RequestID)
	frame[9] = variantByte(msg.Variant)
	binary.BigEndian.PutUint16(frame[10:12], uint16(len(sessionID)))
	binary.BigEndian.PutUint16(frame[12:14], uint16(len(route)))
	binary.BigEndian.PutUint16(frame[14:16], uint16(len(status)))
	binary.BigEndian.PutUint16(frame[16:18], uint16(len(subID)))
	binary.BigEndian.PutUint32(frame[18:22], uint32(len(payload)))

	off := hdr
	off += copy(frame[off:], sessionID)
	off += copy(frame[off:], route)
	off += copy(frame[off:], status)
	off += copy(frame[off:], subID)
	copy(frame[off:], payload)

	return frame
}

// Decode parses a binary frame produced by Encode.
func Decode(data []byte) (*Message, error) {
	const hdr = 1 + 8 + 1 + 2 + 2 + 2 + 2 + 4
	if len(data) < hdr || data[0] != frameVersion {
		return nil, ErrInvalidFrame
	}

	requestID := binary.BigEndian.Uint64(data[1:9])
	variant, err := variantFromByte(data[9])
	if err != nil {
		return nil, err
	}

	sessionIDLen := int(binary.BigEndian.Uint16(data[10:12]))
	routeLen := int(binary.BigEndian.Uint16(data[12:14]))
	statusLen := int(binary.BigEndian.Uint16(data[14:16]))
	subIDLen := int(binary.BigEndian.Uint16(data[16:18]))
	payloadLen := int(binary.BigEndian.Uint32(data[18:22]))

	total := hdr + sessionIDLen + routeLen + statusLen + subIDLen + payloadLen
	if total != len(data) {
		return nil, ErrInvalidFrame
	}

	off := hdr
	sessionID := string(data[off : off+sessionIDLen])
	off += sessionIDLen
	route := string(data[off : off+routeLen])
	off += routeLen
	status := string(data[off : off+statusLen])
	off += statusLen
	subID := string(data[off : off+subIDLen])
	off += subIDLen
	payload := append([]byte(nil), data[off:off+payloadLen]...)

	return &Message{
		Variant:        variant,
		RequestID:      requestID,
		SessionID:      sessionID,
		Route:          route,
		Status:         status,
		SubscriptionID: subID,
		Payload:        payload,
	}, nil
}

func variantByte(v Variant) byte {
	switch v {
	case VariantRequest:
		return 0
	case VariantReply:
		return 1
	case VariantNotification:
		return 2
	default:
		return 255
	}
}

func variantFromByte(b byte) (Variant, error) {
	switch b {
	case 0:
		return VariantRequest, nil
	case 1:
		return VariantReply, nil
	case 2:
		return VariantNotification, nil
	default:
		return "", ErrInvalidFrame
	}
}

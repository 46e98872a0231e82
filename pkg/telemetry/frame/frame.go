package frame

import (
	"errors"
	"fmt"
)

// Each datagram starts with a 1-byte packet type followed by 3 reserved
// bytes. Only TypeTelemetry packets carry per-car data in this protocol
// generation; all other types are valid but not interpreted.
const (
	headerLen      = 4
	minDatagramLen = headerLen + 1

	TypeTelemetry byte = 2
)

var ErrMalformedPacket = errors.New("malformed packet")

// Packet is a framed datagram. Body aliases the input slice and is only
// valid until the receive buffer is reused.
type Packet struct {
	TypeID byte
	Body   []byte
}

// Frame strips the fixed header from a raw datagram.
func Frame(raw []byte) (Packet, error) {
	if len(raw) < minDatagramLen {
		return Packet{}, fmt.Errorf("%w: got %d bytes, need at least %d",
			ErrMalformedPacket, len(raw), minDatagramLen)
	}
	return Packet{TypeID: raw[0], Body: raw[headerLen:]}, nil
}

// Telemetry reports whether the packet should be decoded at all.
func (p Packet) Telemetry() bool {
	return p.TypeID == TypeTelemetry
}

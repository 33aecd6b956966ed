package frame

import (
	"encoding/binary"
	"fmt"
)

// Handshake is the first frame each side sends on a new connection.
type Handshake struct {
	Magic   [7]byte
	Version [3]uint32
}

func (msg Handshake) Tag() byte { return TagHandshake }

func (msg Handshake) Cost() int { return flatCost() }

func (msg Handshake) String() string {
	return fmt.Sprintf("{Handshake Magic:%q Version:%d.%d.%d}",
		msg.Magic[:], msg.Version[0], msg.Version[1], msg.Version[2])
}

func (msg Handshake) Bytes() []byte {
	packet := make([]byte, 1+handshakeSize)
	packet[0] = TagHandshake
	copy(packet[1:8], msg.Magic[:])
	for i, v := range msg.Version {
		binary.LittleEndian.PutUint32(packet[8+i*4:], v)
	}
	return packet
}

func decodeHandshake(body []byte) Handshake {
	var msg Handshake
	copy(msg.Magic[:], body[0:7])
	for i := range msg.Version {
		msg.Version[i] = binary.LittleEndian.Uint32(body[7+i*4:])
	}
	return msg
}

package frame

import "fmt"

// Init identifies the sending participant once the handshake matched.
type Init struct {
	Pid    [16]byte
	Secret [16]byte
}

func (msg Init) Tag() byte { return TagInit }

func (msg Init) Cost() int { return flatCost() }

func (msg Init) String() string {
	return fmt.Sprintf("{Init Pid:%x}", msg.Pid[:])
}

func (msg Init) Bytes() []byte {
	packet := make([]byte, 1+initSize)
	packet[0] = TagInit
	copy(packet[1:17], msg.Pid[:])
	copy(packet[17:33], msg.Secret[:])
	return packet
}

func decodeInit(body []byte) Init {
	var msg Init
	copy(msg.Pid[:], body[0:16])
	copy(msg.Secret[:], body[16:32])
	return msg
}

package frame

import (
	"encoding/binary"
	"fmt"
)

// DataHeader announces a message and its total length. It precedes every
// Data frame carrying the same Mid.
type DataHeader struct {
	Mid    uint64
	Sid    uint64
	Length uint64
}

func (msg DataHeader) Tag() byte { return TagDataHeader }

func (msg DataHeader) Cost() int { return flatCost() }

func (msg DataHeader) String() string {
	return fmt.Sprintf("{DataHeader Mid:%d Sid:%d Length:%d}", msg.Mid, msg.Sid, msg.Length)
}

func (msg DataHeader) Bytes() []byte {
	packet := make([]byte, 1+dataHeaderSize)
	packet[0] = TagDataHeader
	binary.LittleEndian.PutUint64(packet[1:9], msg.Mid)
	binary.LittleEndian.PutUint64(packet[9:17], msg.Sid)
	binary.LittleEndian.PutUint64(packet[17:25], msg.Length)
	return packet
}

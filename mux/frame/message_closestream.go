package frame

import (
	"encoding/binary"
	"fmt"
)

type CloseStream struct {
	Sid uint64
}

func (msg CloseStream) Tag() byte { return TagCloseStream }

func (msg CloseStream) Cost() int { return flatCost() }

func (msg CloseStream) String() string {
	return fmt.Sprintf("{CloseStream Sid:%d}", msg.Sid)
}

func (msg CloseStream) Bytes() []byte {
	packet := make([]byte, 1+closeStreamSize)
	packet[0] = TagCloseStream
	binary.LittleEndian.PutUint64(packet[1:9], msg.Sid)
	return packet
}

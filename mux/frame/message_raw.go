package frame

import (
	"encoding/binary"
	"fmt"
)

// Raw carries free form bytes, used to tell a rejected peer why.
type Raw struct {
	Data []byte
}

func (msg Raw) Tag() byte { return TagRaw }

func (msg Raw) Cost() int { return flatCost() }

func (msg Raw) String() string {
	return fmt.Sprintf("{Raw %q}", msg.Data)
}

func (msg Raw) Bytes() []byte {
	data := msg.Data
	if len(data) > 0xffff {
		data = data[:0xffff]
	}
	packet := make([]byte, 1+rawSize, 1+rawSize+len(data))
	packet[0] = TagRaw
	binary.LittleEndian.PutUint16(packet[1:3], uint16(len(data)))
	return append(packet, data...)
}

package frame

import (
	"encoding/binary"
	"fmt"
)

type Data struct {
	Mid  uint64
	Data []byte
}

func (msg Data) Tag() byte { return TagData }

func (msg Data) Cost() int { return DataCost(len(msg.Data)) }

// DataCost is the cost of a Data frame carrying n bytes.
func DataCost(n int) int {
	return DataOverhead + 1 + n
}

func (msg Data) String() string {
	return fmt.Sprintf("{Data Mid:%d Length:%d Data: ... }", msg.Mid, len(msg.Data))
}

func (msg Data) Bytes() []byte {
	packet := make([]byte, 1+dataSize, 1+dataSize+len(msg.Data))
	packet[0] = TagData
	binary.LittleEndian.PutUint64(packet[1:9], msg.Mid)
	binary.LittleEndian.PutUint16(packet[9:11], uint16(len(msg.Data)))
	return append(packet, msg.Data...)
}

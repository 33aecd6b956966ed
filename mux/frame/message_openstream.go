package frame

import (
	"encoding/binary"
	"fmt"
)

type OpenStream struct {
	Sid       uint64
	Prio      uint8
	Promises  Promises
	Bandwidth uint64
}

func (msg OpenStream) Tag() byte { return TagOpenStream }

func (msg OpenStream) Cost() int { return flatCost() }

func (msg OpenStream) String() string {
	return fmt.Sprintf("{OpenStream Sid:%d Prio:%d Promises:%s Bandwidth:%d}",
		msg.Sid, msg.Prio, msg.Promises, msg.Bandwidth)
}

func (msg OpenStream) Bytes() []byte {
	packet := make([]byte, 1+openStreamSize)
	packet[0] = TagOpenStream
	binary.LittleEndian.PutUint64(packet[1:9], msg.Sid)
	packet[9] = msg.Prio
	packet[10] = byte(msg.Promises)
	binary.LittleEndian.PutUint64(packet[11:19], msg.Bandwidth)
	return packet
}

func decodeOpenStream(body []byte) OpenStream {
	prio := body[8]
	if prio > MaxPrio {
		prio = MaxPrio
	}
	return OpenStream{
		Sid:       binary.LittleEndian.Uint64(body[0:8]),
		Prio:      prio,
		Promises:  Promises(body[9]),
		Bandwidth: binary.LittleEndian.Uint64(body[10:18]),
	}
}

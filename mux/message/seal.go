package message

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/progrium/qnet-go/mux/frame"
)

const checksumSize = 8

// ErrCorrupt is returned by Unseal when a checksum does not match.
var ErrCorrupt = errors.New("message: checksum mismatch")

// Seal applies the payload transformations of a stream's promises:
// compression first, then a trailing xxhash64 checksum.
func Seal(payload []byte, p frame.Promises) []byte {
	if p.Has(frame.PromiseCompressed) {
		payload = snappy.Encode(nil, payload)
	}
	if p.Has(frame.PromiseConsistency) {
		sum := make([]byte, checksumSize)
		binary.LittleEndian.PutUint64(sum, xxhash.Sum64(payload))
		sealed := make([]byte, 0, len(payload)+checksumSize)
		sealed = append(sealed, payload...)
		payload = append(sealed, sum...)
	}
	return payload
}

// Unseal reverses Seal.
func Unseal(payload []byte, p frame.Promises) ([]byte, error) {
	if p.Has(frame.PromiseConsistency) {
		if len(payload) < checksumSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(payload))
		}
		body := payload[:len(payload)-checksumSize]
		sum := binary.LittleEndian.Uint64(payload[len(payload)-checksumSize:])
		if xxhash.Sum64(body) != sum {
			return nil, ErrCorrupt
		}
		payload = body
	}
	if p.Has(frame.PromiseCompressed) {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		payload = decoded
	}
	return payload, nil
}

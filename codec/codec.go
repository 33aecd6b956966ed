// Package codec serializes values carried as stream messages.
package codec

import (
	"bytes"
	"fmt"
	"io"
)

type Encoder interface {
	// Encode writes an encoding of v to its Writer.
	Encode(v interface{}) error
}

type Decoder interface {
	// Decode reads the next encoded value from its Reader and stores it in the value pointed to by v.
	Decode(v interface{}) error
}

// Codec returns an Encoder or Decoder given a Writer or Reader.
type Codec interface {
	Encoder(w io.Writer) Encoder
	Decoder(r io.Reader) Decoder
}

// Marshal encodes v into a single message payload.
func Marshal(c Codec, v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a message payload into v.
func Unmarshal(c Codec, b []byte, v interface{}) error {
	return c.Decoder(bytes.NewReader(b)).Decode(v)
}

// ByName returns the codec registered under name: "cbor" or "json".
func ByName(name string) (Codec, error) {
	switch name {
	case "", "cbor":
		return CBORCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

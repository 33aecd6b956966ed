package codec

import (
	"encoding/json"
	"errors"
	"io"
)

var errTrailingJSON = errors.New("codec: data after JSON value")

// JSONCodec carries one JSON document per message.
type JSONCodec struct{}

func (c JSONCodec) Encoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	// payloads are not embedded in HTML
	enc.SetEscapeHTML(false)
	return enc
}

func (c JSONCodec) Decoder(r io.Reader) Decoder {
	return jsonDecoder{json.NewDecoder(r)}
}

type jsonDecoder struct {
	dec *json.Decoder
}

// Decode reads the single value of a message. Anything but whitespace
// after it is an error.
func (d jsonDecoder) Decode(v interface{}) error {
	if err := d.dec.Decode(v); err != nil {
		return err
	}
	if d.dec.More() {
		return errTrailingJSON
	}
	return nil
}

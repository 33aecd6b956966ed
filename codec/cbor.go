package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var cborDec cbor.DecMode

func init() {
	var err error
	// maps decoded into interface{} get string keys so they stay usable
	// with mapstructure and encoding/json
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// CBORCodec provides a codec API for a CBOR encoder and decoder.
type CBORCodec struct{}

// Encoder returns a CBOR encoder
func (c CBORCodec) Encoder(w io.Writer) Encoder {
	return cbor.NewEncoder(w)
}

// Decoder returns a CBOR decoder
func (c CBORCodec) Decoder(r io.Reader) Decoder {
	return cborDec.NewDecoder(r)
}

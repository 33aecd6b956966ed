package frame

import (
	"fmt"
	"io"
	"sync"
)

// Encoder encodes frames given an io.Writer. Each frame is passed to the
// writer in a single Write call.
type Encoder struct {
	w io.Writer
	sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (enc *Encoder) Encode(f Frame) error {
	enc.Lock()
	defer enc.Unlock()

	if Debug != nil {
		fmt.Fprintln(Debug, "<<ENC", f)
	}

	_, err := enc.w.Write(f.Bytes())
	return err
}

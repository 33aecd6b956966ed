package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
)

// Decode parses the frame at the front of b and returns it together with
// the number of bytes it occupied. It returns ErrShortFrame if b does not
// hold a whole frame and ErrMalformedFrame for anything it cannot parse.
func Decode(b []byte) (Frame, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrShortFrame
	}
	tag := b[0]
	size, ok := bodySize(tag)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown tag %d", ErrMalformedFrame, tag)
	}
	if len(b) < 1+size {
		return nil, 0, ErrShortFrame
	}
	body := b[1 : 1+size]

	switch tag {
	case TagHandshake:
		return decodeHandshake(body), 1 + size, nil
	case TagInit:
		return decodeInit(body), 1 + size, nil
	case TagShutdown:
		return Shutdown{}, 1 + size, nil
	case TagOpenStream:
		return decodeOpenStream(body), 1 + size, nil
	case TagCloseStream:
		return CloseStream{Sid: binary.LittleEndian.Uint64(body)}, 1 + size, nil
	case TagDataHeader:
		return DataHeader{
			Mid:    binary.LittleEndian.Uint64(body[0:8]),
			Sid:    binary.LittleEndian.Uint64(body[8:16]),
			Length: binary.LittleEndian.Uint64(body[16:24]),
		}, 1 + size, nil
	case TagData:
		n := int(binary.LittleEndian.Uint16(body[8:10]))
		if n > MaxDataSize {
			return nil, 0, fmt.Errorf("%w: data frame of %d bytes", ErrMalformedFrame, n)
		}
		if len(b) < 1+size+n {
			return nil, 0, ErrShortFrame
		}
		data := make([]byte, n)
		copy(data, b[1+size:])
		return Data{Mid: binary.LittleEndian.Uint64(body[0:8]), Data: data}, 1 + size + n, nil
	default: // TagRaw
		n := int(binary.LittleEndian.Uint16(body))
		if len(b) < 1+size+n {
			return nil, 0, ErrShortFrame
		}
		data := make([]byte, n)
		copy(data, b[1+size:])
		return Raw{Data: data}, 1 + size + n, nil
	}
}

// Decoder decodes frames given an io.Reader
type Decoder struct {
	r        io.Reader
	datagram bool
	buf      []byte
	off      int
	chunk    []byte
	err      error
	sync.Mutex
}

// NewDecoder returns a Decoder for a byte stream. Frames may be split
// across reads.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, 32*1024)}
}

// NewDatagramDecoder returns a Decoder for a reader whose every Read yields
// one datagram holding whole frames. A truncated or malformed datagram is
// reported and dropped, and decoding continues with the next datagram.
func NewDatagramDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, datagram: true, chunk: make([]byte, 64*1024)}
}

// Decode returns the next frame. After an ErrMalformedFrame the undecodable
// bytes have been discarded.
func (dec *Decoder) Decode() (Frame, error) {
	dec.Lock()
	defer dec.Unlock()

	for {
		if pending := dec.buf[dec.off:]; len(pending) > 0 {
			f, n, err := Decode(pending)
			switch {
			case err == nil:
				dec.off += n
				if Debug != nil {
					fmt.Fprintln(Debug, ">>DEC", f)
				}
				return f, nil
			case errors.Is(err, ErrShortFrame):
				if dec.datagram {
					dec.reset()
					return nil, fmt.Errorf("%w: truncated datagram of %d bytes", ErrMalformedFrame, len(pending))
				}
			default:
				dec.reset()
				return nil, err
			}
		}

		if dec.err != nil {
			return nil, dec.err
		}
		dec.compact()
		n, err := dec.r.Read(dec.chunk)
		if n > 0 {
			dec.buf = append(dec.buf, dec.chunk[:n]...)
		}
		if err != nil {
			var syscallErr *os.SyscallError
			if errors.As(err, &syscallErr) && syscallErr.Err == syscall.ECONNRESET {
				err = io.EOF
			}
			if n == 0 {
				return nil, err
			}
			dec.err = err
		}
	}
}

// Buffered returns the number of bytes read but not decoded yet.
func (dec *Decoder) Buffered() int {
	dec.Lock()
	defer dec.Unlock()
	return len(dec.buf) - dec.off
}

func (dec *Decoder) reset() {
	dec.buf = dec.buf[:0]
	dec.off = 0
}

func (dec *Decoder) compact() {
	if dec.off == 0 {
		return
	}
	n := copy(dec.buf, dec.buf[dec.off:])
	dec.buf = dec.buf[:n]
	dec.off = 0
}

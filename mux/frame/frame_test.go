package frame

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		in   Frame
		size int
	}{
		{
			in: Handshake{
				Magic:   [7]byte{'Q', 'N', 'E', 'T', 'M', 'U', 'X'},
				Version: [3]uint32{0, 6, 1},
			},
			size: 20,
		},
		{
			in: Init{
				Pid:    [16]byte{1, 2, 3},
				Secret: [16]byte{4, 5, 6},
			},
			size: 33,
		},
		{
			in:   Shutdown{},
			size: 1,
		},
		{
			in: OpenStream{
				Sid:       10,
				Prio:      3,
				Promises:  PromiseOrdered | PromiseCompressed,
				Bandwidth: 1 << 20,
			},
			size: 19,
		},
		{
			in:   CloseStream{Sid: 10},
			size: 9,
		},
		{
			in: DataHeader{
				Mid:    7,
				Sid:    10,
				Length: 5000,
			},
			size: 25,
		},
		{
			in: Data{
				Mid:  7,
				Data: []byte("Hello"),
			},
			size: 16,
		},
		{
			in:   Raw{Data: []byte("bad magic")},
			size: 12,
		},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		if err := enc.Encode(test.in); err != nil {
			t.Fatal(err)
		}
		if buf.Len() != test.size {
			t.Fatalf("%s: encoded %d bytes, want %d", test.in, buf.Len(), test.size)
		}
		dec := NewDecoder(&buf)
		f, err := dec.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(f, test.in) {
			t.Fatalf("decoded %s, want %s", f, test.in)
		}
		if f.Tag() != test.in.Tag() {
			t.Fatal("tag not equal")
		}
		if f.String() == "" {
			t.Fatal("empty string representation")
		}
	}
}

func TestCost(t *testing.T) {
	if got := (Data{Data: make([]byte, 1400)}).Cost(); got != 1411 {
		t.Fatalf("data cost %d, want 1411", got)
	}
	if got := (DataHeader{}).Cost(); got != 25 {
		t.Fatalf("header cost %d, want 25", got)
	}
	if got := (Shutdown{}).Cost(); got != 25 {
		t.Fatalf("shutdown cost %d, want 25", got)
	}
}

func TestDecodeShortAndUnknown(t *testing.T) {
	full := DataHeader{Mid: 1, Sid: 2, Length: 3}.Bytes()
	for i := 0; i < len(full); i++ {
		_, _, err := Decode(full[:i])
		if !errors.Is(err, ErrShortFrame) {
			t.Fatalf("prefix %d: expected short frame, got %v", i, err)
		}
		if !errors.Is(err, ErrMalformedFrame) {
			t.Fatal("short frame should be a malformed frame")
		}
	}

	_, _, err := Decode([]byte{0xEE, 1, 2, 3})
	if !errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected malformed frame, got %v", err)
	}

	oversized := Data{Mid: 1, Data: make([]byte, MaxDataSize)}.Bytes()
	oversized[9], oversized[10] = 0xff, 0xff
	if _, _, err := Decode(oversized); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected malformed frame for oversized data, got %v", err)
	}
}

func TestDecodeClampsPrio(t *testing.T) {
	b := OpenStream{Sid: 1, Prio: MaxPrio}.Bytes()
	b[9] = 200
	f, _, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if f.(OpenStream).Prio != MaxPrio {
		t.Fatalf("prio not clamped: %d", f.(OpenStream).Prio)
	}
}

// oneByteReader hands out a single byte per Read to split every frame.
type oneByteReader struct {
	r io.Reader
}

func (r oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return r.r.Read(p[:1])
}

func TestDecoderSplitReads(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	frames := []Frame{
		OpenStream{Sid: 1, Prio: 7},
		DataHeader{Mid: 0, Sid: 1, Length: 3},
		Data{Mid: 0, Data: []byte("abc")},
		CloseStream{Sid: 1},
	}
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			t.Fatal(err)
		}
	}
	dec := NewDecoder(oneByteReader{&buf})
	for _, want := range frames {
		got, err := dec.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("decoded %s, want %s", got, want)
		}
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

// datagrams returns one queued datagram per Read.
type datagrams [][]byte

func (d *datagrams) Read(p []byte) (int, error) {
	if len(*d) == 0 {
		return 0, io.EOF
	}
	n := copy(p, (*d)[0])
	*d = (*d)[1:]
	return n, nil
}

func TestDatagramDecoderDropsBadDatagram(t *testing.T) {
	good := append(CloseStream{Sid: 1}.Bytes(), CloseStream{Sid: 2}.Bytes()...)
	truncated := DataHeader{Mid: 1}.Bytes()[:5]
	d := &datagrams{good, truncated, {0xEE}, CloseStream{Sid: 3}.Bytes()}
	dec := NewDatagramDecoder(d)

	var sids []uint64
	var malformed int
	for {
		f, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if errors.Is(err, ErrMalformedFrame) {
			malformed++
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		sids = append(sids, f.(CloseStream).Sid)
	}
	if !reflect.DeepEqual(sids, []uint64{1, 2, 3}) {
		t.Fatalf("unexpected frames: %v", sids)
	}
	if malformed != 2 {
		t.Fatalf("expected 2 malformed datagrams, got %d", malformed)
	}
}

func TestPromises(t *testing.T) {
	p, ok := ParsePromises("ordered|consistency")
	if !ok {
		t.Fatal("parse failed")
	}
	if !p.Has(PromiseOrdered) || !p.Has(PromiseNoCorrupt) || p.Has(PromiseCompressed) {
		t.Fatalf("unexpected promises %s", p)
	}
	if p.String() != "ordered|consistency" {
		t.Fatalf("unexpected string %q", p.String())
	}
	if _, ok := ParsePromises("ordered,bogus"); ok {
		t.Fatal("expected parse failure")
	}
}

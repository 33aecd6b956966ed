package frame

import "strings"

// Promises is the set of guarantees attached to a stream when it is opened.
type Promises uint8

const (
	// PromiseOrdered delivers messages in send order.
	PromiseOrdered Promises = 1 << iota
	// PromiseConsistency checksums every message; corrupted messages are dropped.
	PromiseConsistency
	// PromiseGuaranteedDelivery keeps messages queued until the transport took them.
	PromiseGuaranteedDelivery
	// PromiseCompressed compresses payloads before fragmentation.
	PromiseCompressed
	// PromiseEncrypted is reserved on the wire and never granted.
	PromiseEncrypted

	// PromiseNoCorrupt is an alias of PromiseConsistency.
	PromiseNoCorrupt = PromiseConsistency
)

var promiseNames = []struct {
	p    Promises
	name string
}{
	{PromiseOrdered, "ordered"},
	{PromiseConsistency, "consistency"},
	{PromiseGuaranteedDelivery, "guaranteed"},
	{PromiseCompressed, "compressed"},
	{PromiseEncrypted, "encrypted"},
}

// Has reports whether all bits of q are set in p.
func (p Promises) Has(q Promises) bool {
	return p&q == q
}

func (p Promises) String() string {
	if p == 0 {
		return "none"
	}
	var names []string
	for _, n := range promiseNames {
		if p.Has(n.p) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParsePromises parses a "|" or "," separated list of promise names.
func ParsePromises(s string) (Promises, bool) {
	var p Promises
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || f == "none" {
			continue
		}
		found := false
		for _, n := range promiseNames {
			if n.name == f {
				p |= n.p
				found = true
			}
		}
		if !found {
			return 0, false
		}
	}
	return p, true
}

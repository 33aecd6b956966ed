package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used for network addresses given without a port.
const DefaultPort = 14004

// Address names an endpoint of a given kind, e.g. tcp://10.0.0.1:14004 or
// mpsc://node-a.
type Address struct {
	Kind Kind
	Addr string
}

// ParseAddress parses "kind://addr". Without a scheme the address is tcp.
// Network kinds without a port get DefaultPort.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	kind, rest := KindTCP, s
	if i := strings.Index(s, "://"); i >= 0 {
		var ok bool
		if kind, ok = ParseKind(strings.ToLower(s[:i])); !ok {
			return Address{}, fmt.Errorf("transport: unknown scheme %q", s[:i])
		}
		rest = s[i+3:]
	}
	rest = strings.TrimSuffix(rest, "/")
	if kind == KindMpsc {
		return Address{Kind: kind, Addr: rest}, nil
	}
	if rest == "" {
		return Address{}, fmt.Errorf("transport: missing host in %q", s)
	}
	if _, _, err := net.SplitHostPort(rest); err != nil {
		rest = net.JoinHostPort(strings.Trim(rest, "[]"), strconv.Itoa(DefaultPort))
	}
	return Address{Kind: kind, Addr: rest}, nil
}

func (a Address) String() string {
	return a.Kind.String() + "://" + a.Addr
}

package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
)

// ByteSize is a number of bytes that decodes from strings like "25MB" or
// "16MiB".
type ByteSize uint64

// ParseByteSize parses a number with an optional SI or IEC unit. A
// trailing "/s" is accepted so bandwidths read naturally.
func ParseByteSize(s string) (ByteSize, error) {
	in := strings.TrimSpace(s)
	in = strings.TrimSuffix(strings.TrimSuffix(in, "/s"), "/S")
	n, err := humanize.ParseBytes(in)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

func (b ByteSize) String() string {
	return humanize.Bytes(uint64(b))
}

// StringToByteSizeHookFunc decodes strings into ByteSize values.
func StringToByteSizeHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		return ParseByteSize(data.(string))
	}
}

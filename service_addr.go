// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"cmp"
	"context"
	"strings"

	"github.com/samber/oops"
	"google.golang.org/protobuf/encoding/protowire"
)

const serviceSep = "://"

// ServiceAddr names a service on a remote router: "id://scheme@target",
// for example "echo://tcp@127.0.0.1:8080". ServiceAddr is comparable and
// may be used as a map key.
type ServiceAddr struct {
	addr Addr
	id   string
}

// NewServiceAddr pairs addr with a service id.
func NewServiceAddr(addr Addr, id string) ServiceAddr {
	return ServiceAddr{addr: addr, id: id}
}

// ParseServiceAddr parses "id://scheme@target". The id ends at the last
// "://", so an id may itself contain "://".
func ParseServiceAddr(s string) (ServiceAddr, error) {
	i := strings.LastIndex(s, serviceSep)
	if i < 0 {
		return ServiceAddr{}, oops.In("service_addr").With("addr", s).Wrapf(ErrInvalidInput, "malformed service address %q", s)
	}
	addr, err := ParseAddr(s[i+len(serviceSep):])
	if err != nil {
		return ServiceAddr{}, err
	}
	return ServiceAddr{addr: addr, id: s[:i]}, nil
}

// MustParseServiceAddr is ParseServiceAddr that panics on error.
func MustParseServiceAddr(s string) ServiceAddr {
	sa, err := ParseServiceAddr(s)
	if err != nil {
		panic(err)
	}
	return sa
}

func (s ServiceAddr) Addr() Addr { return s.addr }
func (s ServiceAddr) ID() string { return s.id }

// Parts returns the address and the id.
func (s ServiceAddr) Parts() (Addr, string) { return s.addr, s.id }

func (s ServiceAddr) String() string {
	return s.id + serviceSep + s.addr.String()
}

// Compare orders by address, then id.
func (s ServiceAddr) Compare(o ServiceAddr) int {
	if c := s.addr.Compare(o.addr); c != 0 {
		return c
	}
	return cmp.Compare(s.id, o.id)
}

// Connect dials the address and asks for the service.
func (s ServiceAddr) Connect(ctx context.Context, opts ...DialOption) (Channel, error) {
	return Connect(ctx, s.addr, s.id, opts...)
}

// MarshalText returns the canonical "id://addr" form. JSON and YAML use it.
func (s ServiceAddr) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ServiceAddr) UnmarshalText(text []byte) error {
	parsed, err := ParseServiceAddr(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Compact form: the ordered pair (id, addr) as protobuf fields 1 and 2.
const (
	fieldID   protowire.Number = 1
	fieldAddr protowire.Number = 2
)

// MarshalBinary returns the compact form.
func (s ServiceAddr) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendString(b, s.id)
	b = protowire.AppendTag(b, fieldAddr, protowire.BytesType)
	b = protowire.AppendString(b, s.addr.String())
	return b, nil
}

// UnmarshalBinary reads exactly the id and then the address.
func (s *ServiceAddr) UnmarshalBinary(data []byte) error {
	errb := oops.In("service_addr")

	id, n, err := consumeString(data, fieldID)
	if err != nil {
		return errb.Wrapf(err, "expected id")
	}
	data = data[n:]

	raw, n, err := consumeString(data, fieldAddr)
	if err != nil {
		return errb.Wrapf(err, "expected addr")
	}
	if len(data[n:]) != 0 {
		return errb.Wrapf(ErrInvalidInput, "%d trailing bytes", len(data[n:]))
	}

	addr, err := ParseAddr(raw)
	if err != nil {
		return err
	}
	*s = ServiceAddr{addr: addr, id: id}
	return nil
}

func consumeString(b []byte, want protowire.Number) (string, int, error) {
	if len(b) == 0 {
		return "", 0, oops.Wrapf(ErrInvalidInput, "found nothing")
	}
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return "", 0, oops.Wrapf(ErrInvalidInput, "%v", protowire.ParseError(n))
	}
	if num != want || typ != protowire.BytesType {
		return "", 0, oops.Wrapf(ErrInvalidInput, "found field %d type %d", num, typ)
	}
	v, m := protowire.ConsumeString(b[n:])
	if m < 0 {
		return "", 0, oops.Wrapf(ErrInvalidInput, "%v", protowire.ParseError(m))
	}
	return v, n + m, nil
}

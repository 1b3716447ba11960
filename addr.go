// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"cmp"
	"net"
	"strings"

	"github.com/samber/oops"
)

// Addr names a transport endpoint: "scheme@target", for example
// "tcp@127.0.0.1:8080" or "unix@/run/routed.sock".
type Addr struct {
	Scheme string
	Target string
}

// schemes whose target is host:port
var hostPortSchemes = map[string]bool{
	TransportTCP:  true,
	TransportWS:   true,
	TransportWSS:  true,
	TransportGRPC: true,
}

// ParseAddr parses "scheme@target".
func ParseAddr(s string) (Addr, error) {
	errb := oops.In("addr").With("addr", s)

	scheme, target, ok := strings.Cut(s, "@")
	if !ok {
		return Addr{}, errb.Wrapf(ErrInvalidInput, "missing '@' in address %q", s)
	}
	if !validScheme(scheme) {
		return Addr{}, errb.Wrapf(ErrInvalidInput, "bad scheme %q", scheme)
	}
	if target == "" {
		return Addr{}, errb.Wrapf(ErrInvalidInput, "empty target")
	}
	if hostPortSchemes[scheme] {
		if _, _, err := net.SplitHostPort(target); err != nil {
			return Addr{}, errb.Wrapf(ErrInvalidInput, "target %q: %v", target, err)
		}
	}
	return Addr{Scheme: scheme, Target: target}, nil
}

// MustParseAddr is ParseAddr that panics on error.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

func (a Addr) String() string {
	return a.Scheme + "@" + a.Target
}

// IsZero reports whether a is the zero address.
func (a Addr) IsZero() bool { return a == Addr{} }

// Compare orders addresses by scheme, then target.
func (a Addr) Compare(b Addr) int {
	if c := cmp.Compare(a.Scheme, b.Scheme); c != 0 {
		return c
	}
	return cmp.Compare(a.Target, b.Target)
}

func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Addr) UnmarshalText(text []byte) error {
	parsed, err := ParseAddr(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"fmt"

	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Kind distinguishes the two ways a Service runs.
type Kind uint8

const (
	// KindStatic services run on the dispatching goroutine.
	KindStatic Kind = iota + 1
	// KindDynamic services run on their own goroutine.
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDynamic:
		return "dynamic"
	default:
		return "invalid"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "static":
		*k = KindStatic
	case "dynamic":
		*k = KindDynamic
	default:
		return oops.In("service").Wrapf(ErrInvalidInput, "unknown kind %q", text)
	}
	return nil
}

// Func is a service body that runs on its own goroutine. Its error is
// logged and otherwise dropped: the peer has already been told Found.
type Func func(ctx context.Context, c Channel) error

// Service is a leaf of the routing tree. Build one with Static or Dynamic.
type Service struct {
	kind    Kind
	static  func(Channel)
	dynamic Func
}

// Static returns a service that runs fn in-line. The dispatcher does not
// return until fn does.
func Static(fn func(Channel)) Service {
	return Service{kind: KindStatic, static: fn}
}

// Dynamic returns a service that launches fn on a new goroutine and
// returns immediately.
func Dynamic(fn Func) Service {
	return Service{kind: KindDynamic, dynamic: fn}
}

// Kind reports how the service runs.
func (s Service) Kind() Kind { return s.kind }

// IsZero reports whether s was never built.
func (s Service) IsZero() bool { return s.kind == 0 }

func (s Service) valid() bool {
	switch s.kind {
	case KindStatic:
		return s.static != nil
	case KindDynamic:
		return s.dynamic != nil
	}
	return false
}

// call hands c to the service. c belongs to the service afterwards.
func (s Service) call(ctx context.Context, c Channel, log *zap.Logger) {
	switch s.kind {
	case KindStatic:
		defer recoverService(log, c)
		s.static(c)
	case KindDynamic:
		ctx = context.WithoutCancel(ctx)
		go func() {
			defer recoverService(log, c)
			if err := s.dynamic(ctx, c); err != nil {
				log.Debug("service returned error",
					zap.Stringer("remote", c.RemoteAddr()),
					zap.Error(err))
			}
		}()
	default:
		log.Error("dispatch to zero service", zap.Stringer("remote", c.RemoteAddr()))
		_ = c.Close()
	}
}

func recoverService(log *zap.Logger, c Channel) {
	if rec := recover(); rec != nil {
		log.Error("service panic",
			zap.Stringer("remote", c.RemoteAddr()),
			zap.String("panic", fmt.Sprint(rec)))
		_ = c.Close()
	}
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package services holds the services routed registers out of the box.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/samber/oops"

	"github.com/luxfi/route"
)

// Route keys of the built-in services.
const (
	EchoKey   = "echo"
	PingKey   = "sys/ping"
	TimeKey   = "sys/time"
	RoutesKey = "sys/routes"
)

// replyTimeout bounds the single reply of the one-shot services.
const replyTimeout = 5 * time.Second

// Register installs the built-in services on r.
func Register(r route.Router) error {
	for key, h := range map[string]route.Handler{
		EchoKey:   route.Dynamic(Echo),
		PingKey:   route.Static(Ping),
		TimeKey:   Time(time.Now),
		RoutesKey: Routes(r),
	} {
		if err := r.Handle(key, h); err != nil {
			return err
		}
	}
	return nil
}

// Echo sends back every string it receives until the peer closes.
func Echo(ctx context.Context, c route.Channel) error {
	defer c.Close()
	for {
		var msg []byte
		if err := c.Receive(ctx, &msg); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, route.ErrClosed) {
				return nil
			}
			return oops.In("echo").Wrapf(err, "receive")
		}
		if err := c.Send(ctx, msg); err != nil {
			return oops.In("echo").Wrapf(err, "send")
		}
	}
}

// Ping answers "pong" once and closes.
func Ping(c route.Channel) {
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	_ = c.Send(ctx, "pong")
}

// Time answers the current time of now in RFC 3339 and closes.
func Time(now func() time.Time) route.Service {
	return route.Static(func(c route.Channel) {
		defer c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		_ = c.Send(ctx, now().UTC().Format(time.RFC3339Nano))
	})
}

// Routes answers the route listing of r as a JSON array and closes.
func Routes(r route.Router) route.Service {
	return route.Dynamic(func(ctx context.Context, c route.Channel) error {
		defer c.Close()
		data, err := json.Marshal(r.Routes())
		if err != nil {
			return oops.In("routes").Wrapf(err, "encode routes")
		}
		ctx, cancel := context.WithTimeout(ctx, replyTimeout)
		defer cancel()
		return c.Send(ctx, data)
	})
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package route dispatches encrypted connections to services by path.
//
// A Router is a tree of services keyed by path segment. A Server accepts
// connections on one transport, secures each with a Noise XX handshake,
// reads the requested path and answers Found or NotFound before handing
// the Channel to the matching service.
//
// # Transport Selection
//
// Addresses have the form scheme@target. tcp, ws, wss and mem are always
// available, unix on unix systems. Use build tags to enable alternative
// transports:
//
//	go build              # tcp, ws, wss, mem, unix
//	go build -tags grpc   # adds grpc tunnels
//
// # Usage
//
// Server usage:
//
//	r := route.NewRouter().
//	    Route("sys/ping", route.Static(func(c route.Channel) {
//	        defer c.Close()
//	        _ = c.Send(context.Background(), "pong")
//	    })).
//	    RouteFunc("echo", echo)
//
//	s, err := route.Bind(ctx, route.MustParseAddr("tcp@:7400"), r)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
// Client usage:
//
//	c, err := route.MustParseServiceAddr("sys/ping://tcp@localhost:7400").Connect(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	var reply string
//	err = c.Receive(ctx, &reply)
//
// # Services
//
// Static services run on the dispatching goroutine and are meant for short
// replies. Dynamic services get their own goroutine and may hold the
// channel for as long as they like. Either way the service owns the
// channel and must close it.
//
// Resolution is greedy: the walk stops at the first service on the path,
// so "/echo/anything" reaches the service at "echo".
//
// # Architecture
//
//   - router.go, table.go: routing tree and resolution
//   - service.go: Static and Dynamic services
//   - channel.go, codec.go: framed values over a net.Conn
//   - secure.go: Noise XX upgrade and identities
//   - dial.go, server.go: Connect, Listen and the accept loop
//   - transport.go, provider_*.go: transport registry
//   - admin.go, json.go: JSON-RPC admin endpoint and client
package route

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"net/http"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// AdminService exposes a router over JSON-RPC 2.0 as service "Admin".
type AdminService struct {
	router Router
}

type RoutesArgs struct{}

type RoutesReply struct {
	Routes []RouteInfo `json:"routes"`
}

type ResolveArgs struct {
	Path string `json:"path"`
}

type ResolveReply struct {
	Found bool `json:"found"`
	Kind  Kind `json:"kind,omitempty"`
}

type TransportsArgs struct{}

type TransportsReply struct {
	Schemes []string `json:"schemes"`
}

// Routes lists every registered service.
func (a *AdminService) Routes(_ *http.Request, _ *RoutesArgs, reply *RoutesReply) error {
	reply.Routes = a.router.Routes()
	if reply.Routes == nil {
		reply.Routes = []RouteInfo{}
	}
	return nil
}

// Resolve reports what a path would dispatch to.
func (a *AdminService) Resolve(_ *http.Request, args *ResolveArgs, reply *ResolveReply) error {
	svc, ok := a.router.Lookup(args.Path)
	reply.Found = ok
	if ok {
		reply.Kind = svc.Kind()
	}
	return nil
}

// Transports lists the registered address schemes.
func (a *AdminService) Transports(_ *http.Request, _ *TransportsArgs, reply *TransportsReply) error {
	reply.Schemes = AvailableTransports()
	return nil
}

// NewAdminHandler returns an http.Handler serving AdminService for r.
func NewAdminHandler(r Router) (http.Handler, error) {
	s := gorillarpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&AdminService{router: r}, "Admin"); err != nil {
		return nil, err
	}
	return s, nil
}

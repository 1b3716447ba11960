// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

const (
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

// Option configures SendJSONRequest
type Option func(*Options)

// Options holds the settings of one JSON-RPC request
type Options struct {
	headers     http.Header
	queryParams url.Values
	log         *zap.Logger
}

// NewOptions applies options over the defaults
func NewOptions(options []Option) *Options {
	o := &Options{
		headers:     http.Header{},
		queryParams: url.Values{},
		log:         zap.NewNop(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// WithHeader adds a request header
func WithHeader(key, value string) Option {
	return func(o *Options) { o.headers.Add(key, value) }
}

// WithQueryParam adds a URL query parameter
func WithQueryParam(key, value string) Option {
	return func(o *Options) { o.queryParams.Add(key, value) }
}

// WithRequestLogger logs retries to l
func WithRequestLogger(l *zap.Logger) Option {
	return func(o *Options) { o.log = l }
}

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body so the
// connection is not torn down with unread data.
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// transient reports whether a failed HTTP attempt may succeed if repeated.
func transient(err error) bool {
	for _, target := range []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.EPIPE,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// SendJSONRequest performs a JSON-RPC 2.0 call against an HTTP endpoint such
// as the one served by NewAdminHandler. Transient network errors are retried
// with exponential backoff.
func SendJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params any,
	reply any,
	options ...Option,
) error {
	errb := oops.In("jsonrpc").With("method", method, "uri", uri.String())

	requestBodyBytes, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return errb.Wrapf(err, "failed to encode client params")
	}

	ops := NewOptions(options)
	u := *uri
	u.RawQuery = ops.queryParams.Encode()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}

		// body buffer is consumed by each attempt
		request, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			u.String(),
			bytes.NewBuffer(requestBodyBytes),
		)
		if err != nil {
			return errb.Wrapf(err, "failed to create request")
		}
		request.Header = ops.headers.Clone()
		request.Header.Set("Content-Type", "application/json")

		resp, err := newHTTPClient().Do(request)
		if err != nil {
			lastErr = err
			retryable := transient(err)
			ops.log.Debug("request attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Bool("retryable", retryable),
				zap.Error(err))
			if retryable {
				continue
			}
			return errb.Wrapf(err, "failed to issue request")
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = CleanlyCloseBody(resp.Body)
			return errb.Errorf("received status code: %d", resp.StatusCode)
		}

		err = json2.DecodeClientResponse(resp.Body, reply)
		_ = CleanlyCloseBody(resp.Body)
		if err != nil {
			return errb.Wrapf(err, "failed to decode client response")
		}
		return nil
	}

	return errb.Wrapf(lastErr, "failed to issue request after %d retries", maxRetries)
}

// Copyright © 2018 One Concern

package gateway

import (
	"net/http"

	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Option is a functor to configure the gateway client
type Option func(*Client)

// HTTPClient overrides the default http client
func HTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Logger injects a logger in the client
func Logger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.l = l
		}
	}
}

// Tracer injects an opentracing tracer. The global tracer is used by default.
func Tracer(tr opentracing.Tracer) Option {
	return func(c *Client) {
		if tr != nil {
			c.tr = tr
		}
	}
}

// WithAPIVersion declares another version of the protocol in requests
func WithAPIVersion(v int) Option {
	return func(c *Client) {
		if v > 0 {
			c.apiVersion = v
		}
	}
}

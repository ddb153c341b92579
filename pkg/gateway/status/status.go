// Copyright © 2018 One Concern

// Package status declares error constants returned by
// the gateway client and the receiving gateway.
package status

import "github.com/oneconcern/packpub/pkg/errors"

var (
	// ErrTransport indicates that the request to the gateway could not be completed
	ErrTransport = errors.New("gateway transport error")

	// ErrNotAcknowledged indicates that the gateway reply is not the canonical acknowledgement
	ErrNotAcknowledged = errors.New("gateway did not acknowledge the request")

	// ErrPathBusy indicates that another publisher holds a lease on the requested path
	ErrPathBusy = errors.New("lease path is busy")

	// ErrLeaseRefused indicates that the gateway refused to grant a lease
	ErrLeaseRefused = errors.New("lease refused")

	// ErrMalformedReply indicates a gateway reply which cannot be decoded
	ErrMalformedReply = errors.New("malformed gateway reply")

	// ErrUnauthorized indicates a request with missing or invalid credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken indicates a session token which is unknown or expired
	ErrInvalidToken = errors.New("invalid session token")

	// ErrMalformedRequest indicates a request which cannot be decoded by the gateway
	ErrMalformedRequest = errors.New("malformed gateway request")

	// ErrDigestMismatch indicates a payload whose content does not match its declared digest
	ErrDigestMismatch = errors.New("payload digest mismatch")
)

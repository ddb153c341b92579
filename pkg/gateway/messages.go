// Copyright © 2018 One Concern

package gateway

import (
	"strconv"
)

// DefaultAPIVersion is the version of the gateway protocol spoken by this client
const DefaultAPIVersion = 2

// Reply statuses
const (
	StatusOK       = "ok"
	StatusPathBusy = "path_busy"
	StatusError    = "error"
)

const (
	// MessageSizeHeader declares the length of the JSON envelope prefixing a payload body
	MessageSizeHeader = "Message-Size"

	// AuthorizationHeader carries the key id and the request signature
	AuthorizationHeader = "Authorization"
)

// Acknowledgement is the only reply body accepted as a success
var Acknowledgement = []byte(`{"status":"ok"}`)

// PayloadEnvelope prefixes the body of a payload submission
type PayloadEnvelope struct {
	SessionToken  string `json:"session_token"`
	PayloadDigest string `json:"payload_digest"`
	APIVersion    string `json:"api_version"`
}

// LeaseRequest is the body of a lease acquisition
type LeaseRequest struct {
	Path       string `json:"path"`
	APIVersion string `json:"api_version"`
}

// Reply from the gateway
type Reply struct {
	Status        string `json:"status"`
	SessionToken  string `json:"session_token,omitempty"`
	TimeRemaining string `json:"time_remaining,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func versionString(v int) string {
	return strconv.Itoa(v)
}

// Copyright © 2018 One Concern

// Package gateway speaks the publish protocol of a repository gateway.
//
// A publisher first acquires a lease on a path of the repository, which yields a
// session token. Object packs are then posted as payloads:
//
//	POST {api}/payloads
//	Authorization: <key id> <base64 HMAC-SHA1 of the JSON envelope>
//	Message-Size: <length of the JSON envelope>
//
//	{"session_token":...,"payload_digest":...,"api_version":...}<base64 serialized pack>
//
// The lease is eventually released with DELETE {api}/leases/{token}.
//
// A payload is accepted only when the gateway replies exactly {"status":"ok"}.
package gateway

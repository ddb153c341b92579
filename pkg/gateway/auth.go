// Copyright © 2018 One Concern

package gateway

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is mandated by the gateway protocol
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/oneconcern/packpub/pkg/gateway/status"
)

// Sign computes the request signature: the base64 encoding of the hex HMAC-SHA1 of msg
func Sign(secret string, msg []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(msg)
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(mac.Sum(nil))))
}

// Verify checks a request signature in constant time
func Verify(secret string, msg []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, msg)), []byte(signature))
}

// Authorization builds the value of the Authorization header
func Authorization(keyID, signature string) string {
	return keyID + " " + signature
}

// ParseAuthorization splits the value of an Authorization header into key id and signature
func ParseAuthorization(header string) (string, string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", "", status.ErrUnauthorized
	}
	return parts[0], parts[1], nil
}

// EncodeDigest renders a payload digest as sent in an envelope: base64 of the hex digest
func EncodeDigest(digest []byte) string {
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(digest)))
}

// DecodeDigest reads back a payload digest from an envelope
func DecodeDigest(s string) ([]byte, error) {
	h, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, status.ErrMalformedRequest.Wrap(err)
	}
	digest, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, status.ErrMalformedRequest.Wrap(err)
	}
	return digest, nil
}

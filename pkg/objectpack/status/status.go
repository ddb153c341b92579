// Copyright © 2018 One Concern

// Package status declares error constants returned by
// the objectpack package.
package status

import (
	"github.com/oneconcern/packpub/pkg/errors"
)

var (
	// ErrPackFull signals that committing a bucket would exceed the pack size limit
	ErrPackFull = errors.New("object pack is full")

	// ErrUnknownBucket signals that the bucket handle is not open in this pack
	ErrUnknownBucket = errors.New("bucket is not open in this pack")

	// ErrBucketSealed signals a write on a bucket that has already been committed
	ErrBucketSealed = errors.New("bucket is already committed")

	// ErrInvalidContentType signals an unsupported bucket content type
	ErrInvalidContentType = errors.New("invalid bucket content type")

	// ErrUnknownAlgorithm signals an unsupported hash algorithm
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

	// ErrInvalidHash signals a malformed hash representation
	ErrInvalidHash = errors.New("invalid hash")

	// ErrMalformedPack signals a serialized object pack that cannot be parsed
	ErrMalformedPack = errors.New("malformed object pack")
)

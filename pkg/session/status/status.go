// Copyright © 2018 One Concern

// Package status declares error constants returned by
// the session package.
package status

import (
	"github.com/oneconcern/packpub/pkg/errors"
)

var (
	// ErrNotInitialized signals an operation on a session which has not been initialized
	ErrNotInitialized = errors.New("session is not initialized")

	// ErrAlreadyInitialized signals a second initialization without finalizing the session
	ErrAlreadyInitialized = errors.New("session is already initialized")

	// ErrPackOpen signals a pack left open by an unclean prior session
	ErrPackOpen = errors.New("an object pack is already open")

	// ErrNoOpenPack signals a commit while no pack is open
	ErrNoOpenPack = errors.New("no object pack is open")

	// ErrObjectTooLarge signals an object which does not fit in an empty pack
	ErrObjectTooLarge = errors.New("object exceeds the maximum pack size")

	// ErrActiveBuckets signals a finalization while some buckets are still being written
	ErrActiveBuckets = errors.New("buckets are still active")

	// ErrUploadFailed signals a pack which has not been acknowledged by the gateway
	ErrUploadFailed = errors.New("pack upload failed")

	// ErrAccountingMismatch signals that committed and dispatched bytes do not balance
	ErrAccountingMismatch = errors.New("committed and dispatched bytes do not match")

	// ErrLeaseDrop signals a failure to release the upload lease
	ErrLeaseDrop = errors.New("could not drop the upload lease")
)

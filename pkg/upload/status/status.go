// Copyright © 2018 One Concern

// Package status declares error constants returned by
// the upload package.
package status

import (
	"github.com/oneconcern/packpub/pkg/errors"
)

var (
	// ErrLease signals that no lease could be obtained on the publish path
	ErrLease = errors.New("could not acquire a lease")

	// ErrRead signals a failure to read the content to upload
	ErrRead = errors.New("could not read content")

	// ErrClosed signals an upload on a closed uploader
	ErrClosed = errors.New("uploader is closed")
)

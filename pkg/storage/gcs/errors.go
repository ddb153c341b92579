// Copyright © 2018 One Concern

package gcs

import (
	stderr "errors"
	"net/http"
	"strings"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/storage/status"
	"google.golang.org/api/googleapi"
)

func isNotExists(err error) bool {
	return errors.Is(err, status.ErrNotExists)
}

func apiErrors(err *googleapi.Error) error {
	switch err.Code {
	case http.StatusBadRequest:
		if strings.Contains(err.Body, "bucket is not valid") || strings.Contains(err.Message, "Invalid bucket name") {
			return status.ErrInvalidResource.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	case http.StatusUnauthorized:
		return status.ErrUnauthorized.Wrap(err)
	case http.StatusForbidden:
		return status.ErrForbidden.Wrap(err)
	case http.StatusNotFound:
		return status.ErrNotExists.Wrap(err)
	case http.StatusPreconditionFailed:
		// the object already exists and the write was conditional
		return status.ErrExists.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

func toSentinelErrors(err error) error {
	// return sentinel errors defined by the status package
	if err == nil {
		return nil
	}
	if stderr.Is(err, gcsStorage.ErrObjectNotExist) {
		return status.ErrNotExists.Wrap(err)
	}
	if stderr.Is(err, gcsStorage.ErrBucketNotExist) {
		return status.ErrInvalidResource.Wrap(err)
	}
	var typedErr *googleapi.Error
	if stderr.As(err, &typedErr) {
		return apiErrors(typedErr)
	}
	return status.ErrStorageAPI.Wrap(err)
}

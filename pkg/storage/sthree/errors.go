// Copyright © 2018 One Concern

package sthree

import (
	stderr "errors"

	"github.com/aws/smithy-go"
	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/storage/status"
)

func isNotExists(err error) bool {
	return errors.Is(err, status.ErrNotExists)
}

func apiErrors(err smithy.APIError) error {
	// https://docs.aws.amazon.com/AmazonS3/latest/API/ErrorResponses.html#ErrorCodeList
	switch err.ErrorCode() {
	case "NoSuchKey", "NotFound": // NotFound is returned on HEAD requests
		return status.ErrNotExists.Wrap(err)
	case "AccessDenied", "Forbidden":
		return status.ErrForbidden.Wrap(err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return status.ErrUnauthorized.Wrap(err)
	case "InvalidBucketName", "NoSuchBucket":
		return status.ErrInvalidResource.Wrap(err)
	case "PreconditionFailed", "ConditionalRequestConflict":
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
	var apiErr smithy.APIError
	if stderr.As(err, &apiErr) {
		return apiErrors(apiErr)
	}
	return status.ErrStorageAPI.Wrap(err)
}

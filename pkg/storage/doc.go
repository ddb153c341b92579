// Copyright © 2018 One Concern

// Package storage provides interface to handle backend storage objects.
//
// This package supports the following backends:
//   - S3 (AWS, or any S3-compatible endpoint)
//   - local file system
//
// The receiving gateway stores accepted payloads in one or several such stores.
package storage

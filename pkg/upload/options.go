// Copyright © 2018 One Concern

package upload

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/oneconcern/packpub/pkg/session"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option is a functor to provide the uploader with options
type Option func(*Uploader)

// Hash selects the algorithm computing the identity of uploaded objects. The default is SHA-1.
func Hash(algo objectpack.Algorithm) Option {
	return func(u *Uploader) {
		if algo != "" {
			u.algo = algo
		}
	}
}

// FS sets the file system files are uploaded from. The default is the OS file system.
func FS(fs afero.Fs) Option {
	return func(u *Uploader) {
		if fs != nil {
			u.fs = fs
		}
	}
}

// Logger injects a logger in the uploader and its session
func Logger(l *zap.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.l = l
		}
	}
}

// DedupCacheSize sets the number of recently committed objects remembered to skip duplicates
func DedupCacheSize(size int) Option {
	return func(u *Uploader) {
		if size > 0 {
			u.dedupSize = size
		}
	}
}

// LeaseBackOff sets the retry policy when the lease path is busy
func LeaseBackOff(b backoff.BackOff) Option {
	return func(u *Uploader) {
		if b != nil {
			u.leaseBackOff = b
		}
	}
}

// SessionOptions are passed to the underlying session
func SessionOptions(opts ...session.Option) Option {
	return func(u *Uploader) {
		u.sessionOpts = append(u.sessionOpts, opts...)
	}
}

// Exclude files from UploadTree with glob patterns, matched against paths relative to the tree root.
// Patterns support "**" to match any number of directories. Invalid patterns are ignored.
func Exclude(patterns ...string) Option {
	return func(u *Uploader) {
		for _, pattern := range patterns {
			if doublestar.ValidatePattern(pattern) {
				u.excludes = append(u.excludes, pattern)
			}
		}
	}
}

// Copyright © 2018 One Concern

package session

import (
	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Option is a functor to provide the session with options
type Option func(*Session)

// MaxPackSize sets the size limit of object packs. The default is objectpack.DefaultLimit.
func MaxPackSize(size uint64) Option {
	return func(s *Session) {
		if size > 0 {
			s.maxPackSize = size
		}
	}
}

// DropLease tells the session to release its lease when finalized
func DropLease(enabled bool) Option {
	return func(s *Session) {
		s.dropLease = enabled
	}
}

// JobQueue sets the maximum number of packs waiting for upload.
//
// Once full, dispatching blocks until the worker has drained the queue under highWater.
func JobQueue(capacity, highWater int) Option {
	return func(s *Session) {
		s.jobCapacity = capacity
		s.jobHighWater = highWater
	}
}

// ResultQueue sets the number of upload outcomes held before the oldest is collected
func ResultQueue(capacity int) Option {
	return func(s *Session) {
		s.resultCapacity = capacity
	}
}

// Logger injects a logger in the session
func Logger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.l = l
		}
	}
}

// Tracer injects a tracer for upload spans
func Tracer(tr opentracing.Tracer) Option {
	return func(s *Session) {
		if tr != nil {
			s.tr = tr
		}
	}
}

// WithMetrics enables metrics collection on this session
func WithMetrics(enabled bool) Option {
	return func(s *Session) {
		s.EnableMetrics(enabled)
	}
}

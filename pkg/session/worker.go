// Copyright © 2018 One Concern

package session

import (
	"context"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// work uploads packs in submission order until the job queue is closed and drained
func (s *Session) work(ctx context.Context, token string) {
	defer close(s.workerDone)

	for {
		job, ok := s.jobs.Dequeue()
		if !ok {
			return
		}

		_ = job.result.Set(s.upload(ctx, token, job))
		job.pack = nil

		if s.jobsProcessed.Add(1) == s.jobsSubmitted.Load() {
			// a waiter may already hold a pending token
			_ = s.flushed.TryEnqueue(struct{}{})
		}
	}
}

func (s *Session) upload(ctx context.Context, token string, job *uploadJob) bool {
	var span opentracing.Span
	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		span = s.tr.StartSpan("session.upload", opentracing.ChildOf(parent.Context()))
	} else {
		span = s.tr.StartSpan("session.upload")
	}
	defer span.Finish()

	size, objects := job.pack.Size(), job.pack.NumObjects()
	span.SetTag("job", job.index)
	span.SetTag("pack_size", size)
	span.SetTag("objects", objects)

	start := time.Now()
	err := s.poster.PostPayload(opentracing.ContextWithSpan(ctx, span), token, job.pack)
	if s.MetricsEnabled() {
		s.m.Volume.IO.IORecord(start, "upload")(int64(size), err)
	}
	if err != nil {
		span.SetTag("error", true)
		s.l.Error("pack upload failed",
			zap.Uint64("job", job.index),
			zap.Uint64("pack_size", size),
			zap.Error(err),
		)
		return false
	}

	s.l.Debug("pack uploaded",
		zap.Uint64("job", job.index),
		zap.Uint64("pack_size", size),
		zap.Int("objects", objects),
		zap.Duration("elapsed", time.Since(start)),
	)
	return true
}

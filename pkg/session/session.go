// Copyright © 2018 One Concern

package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	units "github.com/docker/go-units"
	"github.com/oneconcern/packpub/pkg/dlogger"
	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/future"
	"github.com/oneconcern/packpub/pkg/metrics"
	"github.com/oneconcern/packpub/pkg/objectpack"
	packstatus "github.com/oneconcern/packpub/pkg/objectpack/status"
	"github.com/oneconcern/packpub/pkg/queue"
	"github.com/oneconcern/packpub/pkg/session/status"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultJobCapacity    = 1000
	defaultJobHighWater   = 900
	defaultResultCapacity = 1000
)

// PayloadPoster uploads a sealed pack within the session identified by token
type PayloadPoster interface {
	PostPayload(ctx context.Context, token string, pack *objectpack.Pack) error
}

// Leaser releases the lease identified by a session token
type Leaser interface {
	DropLease(ctx context.Context, token string) error
}

type uploadJob struct {
	index  uint64
	pack   *objectpack.Pack
	result *future.Future[bool]
}

type pendingResult struct {
	index  uint64
	result *future.Future[bool]
}

// Stats is a consistent snapshot of the accounting of a session
type Stats struct {
	BytesCommitted  uint64
	BytesDispatched uint64
	JobsSubmitted   uint64
	JobsProcessed   uint64
	OpenPack        bool
	PackSize        uint64
	ActiveBuckets   int
}

// Session batches committed objects into packs and uploads them to a gateway
type Session struct {
	metrics.Enable
	m *M

	poster         PayloadPoster
	leaser         Leaser
	maxPackSize    uint64
	dropLease      bool
	jobCapacity    int
	jobHighWater   int
	resultCapacity int
	l              *zap.Logger
	tr             opentracing.Tracer
	id             string

	// mu guards the current pack, the active buckets and the byte counters
	mu              sync.Mutex
	token           string
	current         *objectpack.Pack
	active          map[*objectpack.Bucket]struct{}
	bytesCommitted  uint64
	bytesDispatched uint64
	initialized     bool
	failures        error

	jobsSubmitted atomic.Uint64
	jobsProcessed atomic.Uint64

	jobs       *queue.Bounded[*uploadJob]
	results    *queue.Bounded[pendingResult]
	flushed    *queue.Bounded[struct{}]
	workerDone chan struct{}
}

// New builds a session uploading packs with poster. The leaser is used to
// release the lease on Finalize, when DropLease is enabled.
func New(poster PayloadPoster, leaser Leaser, opts ...Option) *Session {
	s := &Session{
		poster:         poster,
		leaser:         leaser,
		maxPackSize:    objectpack.DefaultLimit,
		jobCapacity:    defaultJobCapacity,
		jobHighWater:   defaultJobHighWater,
		resultCapacity: defaultResultCapacity,
		l:              zap.NewNop(),
		tr:             opentracing.GlobalTracer(),
		id:             ksuid.New().String(),
		active:         make(map[*objectpack.Bucket]struct{}),
	}
	for _, apply := range opts {
		apply(s)
	}

	s.l = dlogger.Session(s.l, s.id, "")
	s.jobs = queue.New[*uploadJob](s.jobCapacity, s.jobHighWater)
	s.results = queue.New[pendingResult](s.resultCapacity, s.resultCapacity)
	s.flushed = queue.New[struct{}](1, 1)

	if s.MetricsEnabled() {
		s.m = s.EnsureMetrics("session", &M{}).(*M)
	}
	return s
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

// Initialized tells if the upload worker runs. An initialized session must be finalized
// before it is abandoned, otherwise its worker never ends.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Pending counts the dispatched packs which upload has not ended yet
func (s *Session) Pending() uint64 {
	processed := s.jobsProcessed.Load()
	return s.jobsSubmitted.Load() - processed
}

// Initialize resets the session and starts the upload worker.
//
// The worker uploads with ctx: cancelling it fails the uploads still to come.
func (s *Session) Initialize(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return status.ErrAlreadyInitialized
	}
	if s.current != nil {
		return status.ErrPackOpen.WrapWithLog(s.l, fmt.Errorf("%d buckets open", s.current.NumOpenBuckets()))
	}

	s.jobs.Drop()
	s.results.Drop()
	s.flushed.Drop()
	s.jobsSubmitted.Store(0)
	s.jobsProcessed.Store(0)
	s.bytesCommitted = 0
	s.bytesDispatched = 0
	s.failures = nil
	s.token = token

	s.workerDone = make(chan struct{})
	s.initialized = true
	go s.work(ctx, token)

	s.l.Info("session initialized", zap.String("max_pack_size", units.BytesSize(float64(s.maxPackSize))))
	return nil
}

// NewBucket opens a bucket in the current pack, opening a pack if none is.
//
// The caller owns the bucket until it is committed or discarded.
func (s *Session) NewBucket() *objectpack.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.current = objectpack.New(s.maxPackSize)
	}
	h := s.current.NewBucket()
	s.active[h] = struct{}{}
	return h
}

// DiscardBucket drops a bucket which has not been committed
func (s *Session) DiscardBucket(h *objectpack.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return status.ErrNoOpenPack
	}
	if err := s.current.DiscardBucket(h); err != nil {
		return err
	}
	delete(s.active, h)
	s.closeIfEmptyLocked()
	return nil
}

// CommitBucket seals the content of a bucket into the current pack.
//
// When the pack is full, it is dispatched and the commit is retried once against a fresh pack,
// which takes over all the buckets still active. With forceDispatch, the pack is dispatched right
// after the commit.
//
// An object larger than the maximum pack size is discarded and ErrObjectTooLarge is returned.
func (s *Session) CommitBucket(contentType objectpack.ContentType, id objectpack.Hash, h *objectpack.Bucket, name string, forceDispatch bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return status.ErrNotInitialized
	}
	if s.current == nil {
		return status.ErrNoOpenPack
	}
	if !s.current.HasBucket(h) {
		return packstatus.ErrUnknownBucket
	}
	if size := h.Size(); size > s.maxPackSize {
		_ = s.current.DiscardBucket(h)
		delete(s.active, h)
		s.closeIfEmptyLocked()
		return status.ErrObjectTooLarge.WrapWithLog(s.l,
			fmt.Errorf("%s is larger than %s", units.BytesSize(float64(size)), units.BytesSize(float64(s.maxPackSize))),
			zap.Stringer("id", id),
		)
	}

	for attempt := 0; ; attempt++ {
		before := s.current.Size()
		err := s.current.CommitBucket(contentType, id, h, name)
		if err == nil {
			delta := s.current.Size() - before
			delete(s.active, h)
			s.bytesCommitted += delta
			if s.MetricsEnabled() {
				s.m.Volume.Packs.Committed(delta)
			}
			if forceDispatch {
				s.dispatchLocked("forced")
			}
			return nil
		}
		if !errors.Is(err, packstatus.ErrPackFull) || attempt > 0 {
			return err
		}
		s.rolloverLocked()
	}
}

// Dispatch seals the current pack and submits it for upload.
//
// Buckets still active move to a fresh pack. It blocks while the upload queue is full.
func (s *Session) Dispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.l.Warn("dispatch on a session which is not initialized")
		return
	}
	s.dispatchLocked("dispatch")
}

// WaitForUpload blocks until every pack dispatched so far has been uploaded.
//
// Outcomes are not collected: they are reported by Finalize.
func (s *Session) WaitForUpload() {
	for s.jobsProcessed.Load() < s.jobsSubmitted.Load() {
		if _, ok := s.flushed.Dequeue(); !ok {
			return
		}
	}
}

// Finalize dispatches the last pack, collects the outcome of every upload in submission order,
// stops the worker and releases the lease.
//
// The returned error aggregates failed uploads and any accounting mismatch. A lease which
// cannot be released is only logged.
func (s *Session) Finalize(ctx context.Context) (err error) {
	if s.MetricsEnabled() {
		defer func(t0 time.Time) {
			s.m.Usage.UsedAll(t0, "Finalize")(err)
		}(time.Now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return status.ErrNotInitialized
	}
	if n := len(s.active); n > 0 {
		return status.ErrActiveBuckets.WrapWithLog(s.l, fmt.Errorf("%d buckets must be committed or discarded", n))
	}

	if s.current != nil {
		if s.current.NumObjects() > 0 {
			s.submitLocked(s.current, "finalize")
		}
		s.current = nil
	}

	for s.collectLocked() {
	}
	s.jobs.Close()
	<-s.workerDone
	s.initialized = false

	if s.dropLease && s.leaser != nil {
		if lerr := s.leaser.DropLease(ctx, s.token); lerr != nil {
			_ = status.ErrLeaseDrop.WrapWithLog(s.l, lerr)
		}
	}

	if s.bytesCommitted != s.bytesDispatched {
		s.failures = multierr.Append(s.failures, status.ErrAccountingMismatch.WrapWithLog(s.l,
			fmt.Errorf("committed %d bytes, dispatched %d bytes", s.bytesCommitted, s.bytesDispatched)),
		)
	}

	s.l.Info("session finalized",
		zap.Uint64("jobs", s.jobsSubmitted.Load()),
		zap.Uint64("bytes_committed", s.bytesCommitted),
		zap.Uint64("bytes_dispatched", s.bytesDispatched),
		zap.Bool("success", s.failures == nil),
	)
	err, s.failures = s.failures, nil
	return err
}

// Stats yields a snapshot of the session accounting
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		BytesCommitted:  s.bytesCommitted,
		BytesDispatched: s.bytesDispatched,
		JobsSubmitted:   s.jobsSubmitted.Load(),
		JobsProcessed:   s.jobsProcessed.Load(),
		ActiveBuckets:   len(s.active),
	}
	if s.current != nil {
		st.OpenPack = true
		st.PackSize = s.current.Size()
	}
	return st
}

func (s *Session) dispatchLocked(operation string) {
	if s.current == nil {
		return
	}
	if s.current.NumObjects() == 0 {
		s.closeIfEmptyLocked()
		return
	}

	sealed := s.current
	s.current = nil
	if len(s.active) > 0 {
		s.current = s.takeOverLocked(sealed)
	}
	s.submitLocked(sealed, operation)
}

// closeIfEmptyLocked drops the current pack when it holds neither objects nor buckets
func (s *Session) closeIfEmptyLocked() {
	if s.current != nil && s.current.NumObjects() == 0 && len(s.active) == 0 {
		s.current = nil
	}
}

func (s *Session) rolloverLocked() {
	sealed := s.current
	s.current = s.takeOverLocked(sealed)
	if s.MetricsEnabled() {
		s.m.Volume.Packs.IncRollover()
	}
	s.l.Debug("pack rollover",
		zap.Uint64("pack_size", sealed.Size()),
		zap.Int("objects", sealed.NumObjects()),
		zap.Int("active", len(s.active)),
	)
	s.submitLocked(sealed, "rollover")
}

// takeOverLocked moves all active buckets to a fresh pack
func (s *Session) takeOverLocked(from *objectpack.Pack) *objectpack.Pack {
	fresh := objectpack.New(s.maxPackSize)
	for h := range s.active {
		if err := from.TransferBucket(h, fresh); err != nil {
			s.l.Error("active bucket missing from the current pack", zap.Error(err))
		}
	}
	return fresh
}

// submitLocked hands a sealed pack over to the worker. It blocks while the job queue is full.
func (s *Session) submitLocked(pack *objectpack.Pack, operation string) {
	index := s.jobsSubmitted.Add(1)
	s.bytesDispatched += pack.Size()
	if s.MetricsEnabled() {
		s.m.Volume.Packs.Dispatched(pack.Size(), pack.NumObjects(), operation)
	}

	job := &uploadJob{index: index, pack: pack, result: future.New[bool]()}
	pending := pendingResult{index: index, result: job.result}
	for !s.results.TryEnqueue(pending) {
		// too many outcomes held: wait for the oldest one
		if !s.collectLocked() {
			break
		}
	}

	s.l.Debug("pack dispatched",
		zap.Uint64("job", index),
		zap.String("operation", operation),
		zap.Uint64("pack_size", pack.Size()),
		zap.Int("objects", pack.NumObjects()),
	)
	s.jobs.Enqueue(job)
}

// collectLocked waits for the oldest pending outcome and records a failure.
// It returns false when no outcome is pending.
func (s *Session) collectLocked() bool {
	pending, ok := s.results.TryDequeue()
	if !ok {
		return false
	}
	if !pending.result.Get() {
		s.failures = multierr.Append(s.failures, status.ErrUploadFailed.Wrap(fmt.Errorf("job %d", pending.index)))
	}
	return true
}

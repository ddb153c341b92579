// Copyright © 2018 One Concern

// Package upload exposes a publish session as a simple uploader:
// give it content, get back the content hash.
package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/packpub/pkg/dlogger"
	"github.com/oneconcern/packpub/pkg/errors"
	gwstatus "github.com/oneconcern/packpub/pkg/gateway/status"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/oneconcern/packpub/pkg/session"
	sessionstatus "github.com/oneconcern/packpub/pkg/session/status"
	"github.com/oneconcern/packpub/pkg/upload/status"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	defaultDedupSize       = 100000
	defaultLeaseMaxElapsed = 10 * time.Minute
)

// Gateway is the remote end of a publish session
type Gateway interface {
	session.PayloadPoster
	session.Leaser
	AcquireLease(ctx context.Context, path string) (string, error)
}

// Uploader publishes objects under a lease
type Uploader struct {
	gateway      Gateway
	session      *session.Session
	leasePath    string
	token        string
	algo         objectpack.Algorithm
	fs           afero.Fs
	l            *zap.Logger
	dedupSize    int
	seen         *lru.Cache
	leaseBackOff backoff.BackOff
	sessionOpts  []session.Option
	excludes     []string

	mu     sync.RWMutex
	closed bool
}

// Open acquires a lease on leasePath and starts a publish session.
//
// A busy path is retried with an exponential backoff.
func Open(ctx context.Context, gw Gateway, leasePath string, opts ...Option) (*Uploader, error) {
	u := &Uploader{
		gateway:   gw,
		leasePath: leasePath,
		algo:      objectpack.SHA1,
		fs:        afero.NewOsFs(),
		l:         zap.NewNop(),
		dedupSize: defaultDedupSize,
	}
	for _, apply := range opts {
		apply(u)
	}
	if u.leaseBackOff == nil {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = defaultLeaseMaxElapsed
		u.leaseBackOff = b
	}

	var err error
	u.seen, err = lru.New(u.dedupSize)
	if err != nil {
		return nil, err
	}

	if err = u.acquire(ctx); err != nil {
		return nil, err
	}

	u.session = session.New(gw, gw,
		append([]session.Option{
			session.Logger(u.l),
			session.DropLease(true),
		}, u.sessionOpts...)...,
	)
	u.l = dlogger.Session(u.l, u.session.ID(), leasePath)
	if err = u.session.Initialize(ctx, u.token); err != nil {
		_ = gw.DropLease(ctx, u.token)
		return nil, err
	}
	return u, nil
}

func (u *Uploader) acquire(ctx context.Context) error {
	return backoff.RetryNotify(func() error {
		token, err := u.gateway.AcquireLease(ctx, u.leasePath)
		if err != nil {
			if errors.Is(err, gwstatus.ErrPathBusy) {
				return err // retry
			}
			return backoff.Permanent(status.ErrLease.Wrap(err))
		}
		u.token = token
		return nil
	},
		backoff.WithContext(u.leaseBackOff, ctx),
		func(err error, wait time.Duration) {
			u.l.Info("lease path busy, retrying", zap.String("lease_path", u.leasePath), zap.Duration("wait", wait), zap.Error(err))
		},
	)
}

// Token of the publish session
func (u *Uploader) Token() string {
	return u.token
}

// Stats of the underlying session
func (u *Uploader) Stats() session.Stats {
	return u.session.Stats()
}

// Upload writes the content of r as an object and returns its content hash.
//
// Named objects are committed with their name. Content already committed
// during this session with the same name is not sent again.
func (u *Uploader) Upload(ctx context.Context, r io.Reader, name string, contentType objectpack.ContentType) (objectpack.Hash, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return objectpack.Hash{}, status.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return objectpack.Hash{}, err
	}

	hasher, err := objectpack.NewHasher(u.algo)
	if err != nil {
		return objectpack.Hash{}, err
	}

	h := u.session.NewBucket()
	if _, err = io.Copy(io.MultiWriter(h, hasher), r); err != nil {
		_ = u.session.DiscardBucket(h)
		return objectpack.Hash{}, status.ErrRead.WrapWithLog(u.l, err, zap.String("name", name))
	}
	id := objectpack.FromHasher(u.algo, hasher)

	key := contentType.String() + ":" + id.String() + ":" + name
	if u.seen.Contains(key) {
		u.l.Debug("duplicate content skipped", zap.Stringer("id", id))
		return id, u.session.DiscardBucket(h)
	}

	if err = u.session.CommitBucket(contentType, id, h, name, false); err != nil {
		if !errors.Is(err, sessionstatus.ErrObjectTooLarge) {
			_ = u.session.DiscardBucket(h)
		}
		return objectpack.Hash{}, err
	}
	u.seen.Add(key, struct{}{})
	return id, nil
}

// UploadFile uploads the content of a file as a content-addressed object
func (u *Uploader) UploadFile(ctx context.Context, pth string) (objectpack.Hash, error) {
	f, err := u.fs.Open(pth)
	if err != nil {
		return objectpack.Hash{}, status.ErrRead.Wrap(err)
	}
	defer func() {
		_ = f.Close()
	}()
	return u.Upload(ctx, f, "", objectpack.CAS)
}

// UploadTree uploads every regular file under root, in lexical order.
//
// Files and directories matching an exclusion pattern are skipped.
// The callback receives the path of each file relative to root, with its content hash.
func (u *Uploader) UploadTree(ctx context.Context, root string, fn func(string, objectpack.Hash) error) error {
	return afero.Walk(u.fs, root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			return status.ErrRead.Wrap(err)
		}
		rel, err := filepath.Rel(root, pth)
		if err != nil {
			rel = pth
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && u.excluded(rel) {
			u.l.Debug("excluded from publish", zap.String("path", rel))
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		id, err := u.UploadFile(ctx, pth)
		if err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(rel, id)
	})
}

func (u *Uploader) excluded(rel string) bool {
	for _, pattern := range u.excludes {
		// patterns are validated by the option
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Wait until everything uploaded so far has been sent to the gateway
func (u *Uploader) Wait() {
	u.session.WaitForUpload()
}

// Close finalizes the session and releases the lease
func (u *Uploader) Close(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return u.session.Finalize(ctx)
}

// Copyright © 2018 One Concern

package objectpack

import (
	"bytes"
	"sync"

	"github.com/docker/go-units"
	"github.com/oneconcern/packpub/pkg/objectpack/status"
)

// DefaultLimit is the default maximum size of the committed content of a pack (200 MB)
const DefaultLimit uint64 = 200 * units.MiB

// ContentType tells how a committed object is addressed
type ContentType int

const (
	// Empty is the content type of a bucket not yet committed
	Empty ContentType = iota

	// CAS objects are addressed by their content hash only
	CAS

	// Named objects are addressed by their content hash and carry a name
	Named
)

func (c ContentType) String() string {
	switch c {
	case CAS:
		return "C"
	case Named:
		return "N"
	default:
		return ""
	}
}

// Bucket is an in-progress object. It is written by its owner until committed.
type Bucket struct {
	mu          sync.Mutex
	content     bytes.Buffer
	contentType ContentType
	id          Hash
	name        string
	sealed      bool
}

// Write appends content to the bucket
func (b *Bucket) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return 0, status.ErrBucketSealed
	}
	return b.content.Write(p)
}

// Size of the content accumulated so far
func (b *Bucket) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return uint64(b.content.Len())
}

// Bytes yields the content of the bucket. The slice must not be modified.
func (b *Bucket) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.content.Bytes()
}

// ContentType of a committed bucket
func (b *Bucket) ContentType() ContentType {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.contentType
}

// ID is the identity hash of a committed bucket
func (b *Bucket) ID() Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.id
}

// Name of a committed named object
func (b *Bucket) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.name
}

// Committed tells if this bucket has been sealed into a pack
func (b *Bucket) Committed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sealed
}

func (b *Bucket) seal(contentType ContentType, id Hash, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.contentType = contentType
	b.id = id
	b.name = name
	b.sealed = true
}

// Pack is a size-bounded container of committed objects plus open buckets.
//
// A Pack is not safe for concurrent use: it is owned by a single session
// while open, then by a single uploader once sealed.
type Pack struct {
	limit     uint64
	size      uint64
	open      map[*Bucket]struct{}
	committed []*Bucket
}

// New creates an empty pack. A zero limit selects DefaultLimit.
func New(limit uint64) *Pack {
	if limit == 0 {
		limit = DefaultLimit
	}
	return &Pack{
		limit: limit,
		open:  make(map[*Bucket]struct{}),
	}
}

// NewBucket opens a new bucket in this pack
func (p *Pack) NewBucket() *Bucket {
	b := &Bucket{}
	p.open[b] = struct{}{}
	return b
}

// CommitBucket seals the content of an open bucket into the pack.
//
// It fails with ErrPackFull when the pack cannot accept the object without exceeding its limit.
// In that case the bucket remains open.
func (p *Pack) CommitBucket(contentType ContentType, id Hash, b *Bucket, name string) error {
	if contentType != CAS && contentType != Named {
		return status.ErrInvalidContentType
	}
	if id.IsNull() {
		return status.ErrInvalidHash
	}
	if _, ok := p.open[b]; !ok {
		return status.ErrUnknownBucket
	}

	if p.size+b.Size() > p.limit {
		return status.ErrPackFull
	}

	b.seal(contentType, id, name)
	delete(p.open, b)
	p.committed = append(p.committed, b)
	p.size += b.Size()

	return nil
}

// TransferBucket moves an open bucket, with its content, to another pack
func (p *Pack) TransferBucket(b *Bucket, other *Pack) error {
	if _, ok := p.open[b]; !ok {
		return status.ErrUnknownBucket
	}
	delete(p.open, b)
	other.open[b] = struct{}{}
	return nil
}

// DiscardBucket drops an open bucket
func (p *Pack) DiscardBucket(b *Bucket) error {
	if _, ok := p.open[b]; !ok {
		return status.ErrUnknownBucket
	}
	delete(p.open, b)
	return nil
}

// HasBucket tells if the bucket is open in this pack
func (p *Pack) HasBucket(b *Bucket) bool {
	_, ok := p.open[b]
	return ok
}

// Size is the total size of committed objects
func (p *Pack) Size() uint64 {
	return p.size
}

// Limit is the maximum size of the pack
func (p *Pack) Limit() uint64 {
	return p.limit
}

// NumObjects is the number of committed objects
func (p *Pack) NumObjects() int {
	return len(p.committed)
}

// NumOpenBuckets is the number of buckets not yet committed
func (p *Pack) NumOpenBuckets() int {
	return len(p.open)
}

// Objects yields the committed buckets, in commit order
func (p *Pack) Objects() []*Bucket {
	return p.committed
}

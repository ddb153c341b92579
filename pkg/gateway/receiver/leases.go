// Copyright © 2018 One Concern

package receiver

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/gateway/status"
	"github.com/segmentio/ksuid"
)

var (
	pathPref  = []byte("path:")
	tokenPref = []byte("token:")

	// every grant reads then bumps this key, so that concurrent grants conflict
	grantKey = []byte("grants")
)

// leaseRegistry keeps the active leases in badger. Leases expire with the TTL of their entries.
type leaseRegistry struct {
	db  *badger.DB
	ttl time.Duration
}

// openRegistry opens the lease database in dir, or in memory when dir is empty
func openRegistry(dir string, ttl time.Duration) (*leaseRegistry, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &leaseRegistry{db: db, ttl: ttl}, nil
}

func (r *leaseRegistry) Close() error {
	return r.db.Close()
}

// update runs a read-write transaction, retried when it conflicts with a concurrent one
func (r *leaseRegistry) update(fn func(*badger.Txn) error) error {
	return backoff.Retry(func() error {
		err := r.db.Update(fn)
		if err == nil || errors.Is(err, badger.ErrConflict) {
			return err // retry
		}
		return backoff.Permanent(err)
	},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 100),
	)
}

func pathKey(path string) []byte {
	return append(append([]byte{}, pathPref...), path...)
}

func tokenKey(token string) []byte {
	return append(append([]byte{}, tokenPref...), token...)
}

// overlaps tells if two lease paths conflict: one is the other or one of its ancestors.
// The repository root is the ancestor of every path.
func overlaps(a, b string) bool {
	a, b = strings.Trim(a, "/"), strings.Trim(b, "/")
	if a == "" || b == "" {
		return true
	}
	a, b = a+"/", b+"/"
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Acquire a new lease on path.
//
// When a conflicting lease is active, ErrPathBusy is returned with the remaining time of that lease.
func (r *leaseRegistry) Acquire(path string) (string, time.Duration, error) {
	token := ksuid.New().String()
	var remaining time.Duration

	err := r.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(grantKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := r.checkFree(txn, path, &remaining); err != nil {
			return err
		}

		if err := txn.Set(grantKey, []byte(token)); err != nil {
			return err
		}
		if err := txn.SetEntry(badger.NewEntry(pathKey(path), []byte(token)).WithTTL(r.ttl)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(tokenKey(token), []byte(path)).WithTTL(r.ttl))
	})
	if err != nil {
		return "", remaining, err
	}
	return token, 0, nil
}

func (r *leaseRegistry) checkFree(txn *badger.Txn, path string, remaining *time.Duration) error {
	iter := txn.NewIterator(badger.IteratorOptions{Prefix: pathPref})
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		held := string(item.Key()[len(pathPref):])
		if overlaps(held, path) {
			*remaining = time.Until(time.Unix(int64(item.ExpiresAt()), 0))
			return status.ErrPathBusy
		}
	}
	return nil
}

// Lookup the path leased under token
func (r *leaseRegistry) Lookup(token string) (string, error) {
	var path string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(token))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return status.ErrInvalidToken
			}
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		path = string(v)
		return nil
	})
	return path, err
}

// Count the active leases. Expired entries are skipped by badger iterators.
func (r *leaseRegistry) Count() (int, error) {
	var n int
	err := r.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.IteratorOptions{Prefix: tokenPref})
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Drop the lease held under token
func (r *leaseRegistry) Drop(token string) error {
	return r.update(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(token))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return status.ErrInvalidToken
			}
			return err
		}
		path, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(tokenKey(token)); err != nil {
			return err
		}
		return txn.Delete(pathKey(string(path)))
	})
}

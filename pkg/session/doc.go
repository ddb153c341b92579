// Copyright © 2018 One Concern

/*
Package session implements a gateway publish session.

Objects are written by concurrent callers into buckets, then committed into the
object pack currently being filled. When a commit does not fit, the pack rolls over:
a fresh pack takes over every bucket still being written and the full pack is dispatched.

Dispatched packs are uploaded in submission order by a single background worker.
Each upload resolves a future with its outcome. Finalize drains all futures, releases
the lease and checks that every committed byte has been dispatched.

	s := session.New(client, client, session.MaxPackSize(64*units.MiB))
	if err := s.Initialize(ctx, token); err != nil {
		return err
	}
	b := s.NewBucket()
	_, _ = b.Write(content)
	if err := s.CommitBucket(objectpack.CAS, id, b, "", false); err != nil {
		return err
	}
	return s.Finalize(ctx)
*/
package session

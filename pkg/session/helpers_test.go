package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testToken = "session-token"

type post struct {
	token   string
	size    uint64
	objects []string
}

// fakeGateway records posted packs. Uploads may be held with a gate, and fail on demand.
type fakeGateway struct {
	mu      sync.Mutex
	posts   []post
	dropped []string
	gate    chan struct{}
	fail    func(n int) error
	dropErr error
}

func (f *fakeGateway) PostPayload(_ context.Context, token string, pack *objectpack.Pack) error {
	if f.gate != nil {
		<-f.gate
	}
	names := make([]string, 0, pack.NumObjects())
	for _, b := range pack.Objects() {
		names = append(names, b.Name())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.posts)
	f.posts = append(f.posts, post{token: token, size: pack.Size(), objects: names})
	if f.fail != nil {
		return f.fail(n)
	}
	return nil
}

func (f *fakeGateway) DropLease(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, token)
	return f.dropErr
}

func (f *fakeGateway) Posts() []post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]post(nil), f.posts...)
}

func (f *fakeGateway) Sizes() []uint64 {
	posts := f.Posts()
	sizes := make([]uint64, 0, len(posts))
	for _, p := range posts {
		sizes = append(sizes, p.size)
	}
	return sizes
}

func verifyNoLeak(t *testing.T) func() {
	opts := []goleak.Option{
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	}
	return func() {
		goleak.VerifyNone(t, opts...)
	}
}

func writeObject(t testing.TB, s *Session, content string) (*objectpack.Bucket, objectpack.Hash) {
	h := s.NewBucket()
	_, err := h.Write([]byte(content))
	require.NoError(t, err)
	id, err := objectpack.HashBytes(objectpack.SHA1, []byte(content))
	require.NoError(t, err)
	return h, id
}

func commitObject(t testing.TB, s *Session, name string, size int, forceDispatch bool) {
	h, id := writeObject(t, s, strings.Repeat(name[:1], size))
	require.NoError(t, s.CommitBucket(objectpack.Named, id, h, name, forceDispatch))
}

package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/gateway"
	"github.com/oneconcern/packpub/pkg/gateway/receiver"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/oneconcern/packpub/pkg/session/status"
	"github.com/oneconcern/packpub/pkg/storage"
	"github.com/oneconcern/packpub/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMalformedReply(t *testing.T) {
	var posted atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted.Add(1)
		_, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"status":"o`)
	}))
	defer server.Close()

	client := gateway.New(server.URL, "key", "secret")
	s := New(client, client, Logger(zaptest.NewLogger(t)))
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx, testToken))

	h, id := writeObject(t, s, "some content")
	require.NoError(t, s.CommitBucket(objectpack.CAS, id, h, "", false))

	s.mu.Lock()
	pack := s.current
	s.mu.Unlock()
	s.Dispatch()

	pending, ok := s.results.TryDequeue()
	require.True(t, ok)
	assert.False(t, pending.result.Get(), "a garbled acknowledgement is a failed upload")
	require.True(t, s.results.Enqueue(pending))
	assert.Equal(t, uint64(len("some content")), pack.Size())

	err := s.Finalize(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrUploadFailed))
	assert.False(t, errors.Is(err, status.ErrAccountingMismatch))

	st := s.Stats()
	assert.Equal(t, st.BytesCommitted, st.BytesDispatched)
	assert.Equal(t, int32(1), posted.Load())
}

func TestPublishToReceiver(t *testing.T) {
	store := localfs.New(afero.NewMemMapFs())
	srv, err := receiver.NewServer(receiver.ServerParams{
		Keys:   map[string]string{"publisher": "secret"},
		Stores: []storage.MultiStoreUnit{{Store: store}},
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(receiver.InitRouter(srv))
	defer func() {
		ts.Close()
		_ = srv.Close()
	}()

	ctx := context.Background()
	client := gateway.New(ts.URL, "publisher", "secret")
	token, err := client.AcquireLease(ctx, "repo.example.org/sw")
	require.NoError(t, err)

	s := New(client, client, MaxPackSize(64), DropLease(true), Logger(zaptest.NewLogger(t)))
	require.NoError(t, s.Initialize(ctx, token))
	for _, name := range []string{"alpha", "bravo", "charlie", "delta"} {
		commitObject(t, s, name, 30, false)
	}
	s.WaitForUpload()
	require.NoError(t, s.Finalize(ctx))

	st := s.Stats()
	assert.Equal(t, uint64(120), st.BytesDispatched)
	assert.Equal(t, uint64(2), st.JobsSubmitted)

	keys, err := store.KeysPrefix(ctx, "payloads/"+token+"/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	_, err = client.AcquireLease(ctx, "repo.example.org/sw")
	require.NoError(t, err, "the lease has been dropped on finalize")
}

package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"testing"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/storage"
	"github.com/oneconcern/packpub/pkg/storage/status"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestSentinelErrors(t *testing.T) {
	assert.NoError(t, toSentinelErrors(nil))
	assert.True(t, errors.Is(toSentinelErrors(gcsStorage.ErrObjectNotExist), status.ErrNotExists))
	assert.True(t, errors.Is(toSentinelErrors(gcsStorage.ErrBucketNotExist), status.ErrInvalidResource))
	assert.True(t, errors.Is(toSentinelErrors(fmt.Errorf("boom")), status.ErrStorageAPI))

	for code, expected := range map[int]error{
		http.StatusUnauthorized:       status.ErrUnauthorized,
		http.StatusForbidden:          status.ErrForbidden,
		http.StatusNotFound:           status.ErrNotExists,
		http.StatusPreconditionFailed: status.ErrExists,
		http.StatusBadRequest:         status.ErrStorageAPI,
		http.StatusServiceUnavailable: status.ErrStorageAPI,
	} {
		err := toSentinelErrors(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: code}))
		assert.Truef(t, errors.Is(err, expected), "HTTP %d", code)
	}

	err := toSentinelErrors(&googleapi.Error{Code: http.StatusBadRequest, Body: "bucket is not valid"})
	assert.True(t, errors.Is(err, status.ErrInvalidResource))
}

// setup runs against a storage emulator, e.g. fake-gcs-server
func setup(t testing.TB) storage.Store {
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST is not set")
	}
	ctx := context.Background()
	bucket := "packpub-test-" + ksuid.New().String()

	client, err := gcsStorage.NewClient(ctx, option.WithoutAuthentication())
	require.NoError(t, err)
	require.NoError(t, client.Bucket(bucket).Create(ctx, "packpub", nil))
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(ctx, bucket, ClientOptions(option.WithoutAuthentication()))
	require.NoError(t, err)
	assert.Equal(t, "gcs://"+bucket, store.String())
	return store
}

func TestStore(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	for _, key := range []string{"payloads/a/1", "payloads/a/2", "payloads/b/1"} {
		require.NoError(t, store.Put(ctx, key, bytes.NewBufferString(key), storage.NoOverWrite))
	}
	err := store.Put(ctx, "payloads/a/1", bytes.NewBufferString("other"), storage.NoOverWrite)
	assert.True(t, errors.Is(err, status.ErrExists))
	require.NoError(t, store.Put(ctx, "payloads/a/1", bytes.NewBufferString("other"), storage.OverWrite))

	has, err := store.Has(ctx, "payloads/a/1")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = store.Has(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, has)

	rdr, err := store.Get(ctx, "payloads/a/1")
	require.NoError(t, err)
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Equal(t, "other", string(b))

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, status.ErrNotExists))

	keys, err := store.KeysPrefix(ctx, "payloads/a/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"payloads/a/1", "payloads/a/2"}, keys)

	require.NoError(t, store.Delete(ctx, "payloads/b/1"))
	require.NoError(t, store.Clear(ctx))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

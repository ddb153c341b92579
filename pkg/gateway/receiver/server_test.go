package receiver

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/gateway"
	"github.com/oneconcern/packpub/pkg/gateway/status"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/oneconcern/packpub/pkg/storage"
	"github.com/oneconcern/packpub/pkg/storage/localfs"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testKeyID  = "publisher"
	testSecret = "s3cr3t"
)

func testServer(t testing.TB) (*httptest.Server, storage.Store) {
	store := localfs.New(afero.NewMemMapFs())
	srv, err := NewServer(ServerParams{
		Keys:   map[string]string{testKeyID: testSecret},
		Stores: []storage.MultiStoreUnit{{Store: store}},
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(InitRouter(srv))
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts, store
}

func testPack(t testing.TB, contents ...string) *objectpack.Pack {
	p := objectpack.New(0)
	for _, c := range contents {
		b := p.NewBucket()
		_, err := b.Write([]byte(c))
		require.NoError(t, err)
		h, err := objectpack.HashBytes(objectpack.SHA1, []byte(c))
		require.NoError(t, err)
		require.NoError(t, p.CommitBucket(objectpack.Named, h, b, c+".txt"))
	}
	return p
}

func TestPublishFlow(t *testing.T) {
	ts, store := testServer(t)
	ctx := context.Background()
	client := gateway.New(ts.URL, testKeyID, testSecret)

	token, err := client.AcquireLease(ctx, "repo.example.org/software/v1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = client.AcquireLease(ctx, "repo.example.org/software")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrPathBusy), "a parent path conflicts with an active lease")

	_, err = client.AcquireLease(ctx, "repo.example.org/software/v1/sub")
	assert.True(t, errors.Is(err, status.ErrPathBusy), "a child path conflicts with an active lease")

	other, err := client.AcquireLease(ctx, "repo.example.org/software/v10")
	require.NoError(t, err, "sibling paths sharing a name prefix do not conflict")
	require.NoError(t, client.DropLease(ctx, other))

	pack := testPack(t, "alpha", "beta")
	require.NoError(t, client.PostPayload(ctx, token, pack))
	require.NoError(t, client.PostPayload(ctx, token, pack), "posting the same payload twice is idempotent")

	prod := objectpack.NewProducer(pack)
	key := PayloadKey(token, prod.Digest())
	rdr, err := store.Get(ctx, key)
	require.NoError(t, err)
	stored, err := io.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())

	objects, err := objectpack.Parse(bytes.NewReader(stored))
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "alpha.txt", objects[0].Name)
	assert.Equal(t, "beta", string(objects[1].Content))

	require.NoError(t, client.DropLease(ctx, token))
	err = client.PostPayload(ctx, token, pack)
	assert.True(t, errors.Is(err, status.ErrNotAcknowledged), "payloads are refused once the lease is dropped")

	err = client.DropLease(ctx, token)
	assert.True(t, errors.Is(err, status.ErrNotAcknowledged))

	_, err = client.AcquireLease(ctx, "repo.example.org/software")
	require.NoError(t, err, "the path is free again")
}

func TestUnauthorized(t *testing.T) {
	ts, _ := testServer(t)
	ctx := context.Background()

	_, err := gateway.New(ts.URL, testKeyID, "wrong").AcquireLease(ctx, "repo/path")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrLeaseRefused))

	_, err = gateway.New(ts.URL, "unknown", testSecret).AcquireLease(ctx, "repo/path")
	assert.True(t, errors.Is(err, status.ErrLeaseRefused))

	token, err := gateway.New(ts.URL, testKeyID, testSecret).AcquireLease(ctx, "repo/path")
	require.NoError(t, err)
	err = gateway.New(ts.URL, testKeyID, "wrong").PostPayload(ctx, token, testPack(t, "x"))
	assert.True(t, errors.Is(err, status.ErrNotAcknowledged))
}

func TestMalformedPayloads(t *testing.T) {
	ts, store := testServer(t)
	ctx := context.Background()
	token, err := gateway.New(ts.URL, testKeyID, testSecret).AcquireLease(ctx, "repo/path")
	require.NoError(t, err)

	post := func(envelope, rest string, size string) int {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/payloads", strings.NewReader(envelope+rest))
		require.NoError(t, err)
		req.Header.Set(gateway.AuthorizationHeader, gateway.Authorization(testKeyID, gateway.Sign(testSecret, []byte(envelope))))
		req.Header.Set(gateway.MessageSizeHeader, size)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	digest := gateway.EncodeDigest(make([]byte, 20))
	envelope := `{"session_token":"` + token + `","payload_digest":"` + digest + `","api_version":"2"}`
	sizeOf := func(s string) string { return strconv.Itoa(len(s)) }

	assert.Equal(t, http.StatusBadRequest, post(envelope, "", "nope"))
	assert.Equal(t, http.StatusBadRequest, post(envelope, "", "100000"))
	assert.Equal(t, http.StatusBadRequest, post(envelope, "!!!", sizeOf(envelope)), "invalid base64")
	assert.Equal(t, http.StatusBadRequest, post(envelope, "VjIKUzAKTjAKLS0K", sizeOf(envelope)), "digest mismatch")

	oversized := "V2\nS1125899906842624\nN1\n--\nC aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d 1125899906842624\nxyz"
	sum := sha1.Sum([]byte(oversized)) //nolint:gosec
	lying := `{"session_token":"` + token + `","payload_digest":"` + gateway.EncodeDigest(sum[:]) + `","api_version":"2"}`
	assert.Equal(t, http.StatusBadRequest, post(lying, base64.StdEncoding.EncodeToString([]byte(oversized)), sizeOf(lying)),
		"declared object sizes beyond the body are refused")

	unknown := `{"session_token":"unknown","payload_digest":"` + digest + `","api_version":"2"}`
	assert.Equal(t, http.StatusForbidden, post(unknown, "", sizeOf(unknown)))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLeaseExpiry(t *testing.T) {
	registry, err := openRegistry("", time.Second)
	require.NoError(t, err)
	defer func() { _ = registry.Close() }()

	token, _, err := registry.Acquire("repo/a")
	require.NoError(t, err)
	path, err := registry.Lookup(token)
	require.NoError(t, err)
	assert.Equal(t, "repo/a", path)

	_, remaining, err := registry.Acquire("repo/a/b")
	assert.True(t, errors.Is(err, status.ErrPathBusy))
	assert.True(t, remaining <= time.Second)

	count, err := registry.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Eventually(t, func() bool {
		_, err := registry.Lookup(token)
		return errors.Is(err, status.ErrInvalidToken)
	}, 5*time.Second, 100*time.Millisecond)

	count, err = registry.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "expired leases are not counted")

	_, _, err = registry.Acquire("repo/a/b")
	require.NoError(t, err)
}

func TestConcurrentAcquire(t *testing.T) {
	registry, err := openRegistry("", time.Minute)
	require.NoError(t, err)
	defer func() { _ = registry.Close() }()

	const contenders = 8
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := registry.Acquire("repo/contended")
			if err == nil {
				granted.Add(1)
				return
			}
			assert.True(t, errors.Is(err, status.ErrPathBusy))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load(), "a single publisher holds a path")
}

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tracer := mocktracer.New()
	srv, err := NewServer(ServerParams{
		Keys:       map[string]string{testKeyID: testSecret},
		Stores:     []storage.MultiStoreUnit{{Store: localfs.New(afero.NewMemMapFs())}},
		Logger:     zaptest.NewLogger(t),
		Registerer: reg,
	})
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()
	ts := httptest.NewServer(Instrument(InitRouter(srv), tracer, zaptest.NewLogger(t)))
	defer ts.Close()

	ctx := context.Background()
	client := gateway.New(ts.URL, testKeyID, testSecret)
	token, err := client.AcquireLease(ctx, "repo/path")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.m.activeLeases))
	_, err = client.AcquireLease(ctx, "repo/path")
	require.Error(t, err)

	pack := testPack(t, "alpha")
	require.NoError(t, client.PostPayload(ctx, token, pack))
	require.Error(t, gateway.New(ts.URL, testKeyID, "wrong").PostPayload(ctx, token, pack))
	require.NoError(t, client.DropLease(ctx, token))

	m := srv.m
	assert.Equal(t, float64(1), testutil.ToFloat64(m.leases.WithLabelValues(resultAccepted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.leases.WithLabelValues(resultBusy)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.payloads.WithLabelValues(resultAccepted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.payloads.WithLabelValues(resultRejected)))
	assert.Equal(t, float64(objectpack.NewProducer(pack).Len()), testutil.ToFloat64(m.payloadBytes))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.activeLeases))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 5)
	assert.Equal(t, "gateway.POST", spans[0].OperationName)
	assert.Equal(t, uint16(http.StatusOK), spans[0].Tag("http.status_code"))
	assert.Equal(t, uint16(http.StatusConflict), spans[1].Tag("http.status_code"))
	assert.Equal(t, "gateway.DELETE", spans[4].OperationName)
}

func TestOverlaps(t *testing.T) {
	assert.True(t, overlaps("a/b", "a/b"))
	assert.True(t, overlaps("a", "a/b"))
	assert.True(t, overlaps("/a/b/", "a/b/c"))
	assert.False(t, overlaps("a/b", "a/bc"))
	assert.False(t, overlaps("a/b", "c"))

	assert.True(t, overlaps("/", "repo/sub"))
	assert.True(t, overlaps("repo", "/"))
	assert.True(t, overlaps("", "repo"))
}

func TestRootLeaseConflicts(t *testing.T) {
	registry, err := openRegistry("", time.Minute)
	require.NoError(t, err)
	defer func() { _ = registry.Close() }()

	_, _, err = registry.Acquire("repo/sub")
	require.NoError(t, err)
	_, _, err = registry.Acquire("/")
	assert.True(t, errors.Is(err, status.ErrPathBusy), "the root is an ancestor of every path")
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := NewServer(ServerParams{})
	assert.Error(t, err)
}

package gateway_test

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/gateway"
	"github.com/oneconcern/packpub/pkg/gateway/status"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyID  = "key1"
	testSecret = "secret"
)

func testPack(t testing.TB, contents ...string) *objectpack.Pack {
	p := objectpack.New(0)
	for _, c := range contents {
		b := p.NewBucket()
		_, err := b.Write([]byte(c))
		require.NoError(t, err)
		h, err := objectpack.HashBytes(objectpack.SHA1, []byte(c))
		require.NoError(t, err)
		require.NoError(t, p.CommitBucket(objectpack.CAS, h, b, ""))
	}
	return p
}

func TestSign(t *testing.T) {
	// echo -n 'message' | openssl dgst -sha1 -hmac secret
	sig := gateway.Sign("secret", []byte("message"))
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.Equal(t, "0caf649feee4953d87bf903ac1176c45e028df16", string(raw))

	assert.True(t, gateway.Verify("secret", []byte("message"), sig))
	assert.False(t, gateway.Verify("other", []byte("message"), sig))

	keyID, s, err := gateway.ParseAuthorization(gateway.Authorization("key", sig))
	require.NoError(t, err)
	assert.Equal(t, "key", keyID)
	assert.Equal(t, sig, s)

	_, _, err = gateway.ParseAuthorization("garbage")
	assert.True(t, errors.Is(err, status.ErrUnauthorized))

	digest, err := gateway.DecodeDigest(gateway.EncodeDigest([]byte{0xde, 0xad}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, digest)
}

func TestPostPayload(t *testing.T) {
	pack := testPack(t, "hello", "world")
	expected, err := io.ReadAll(objectpack.NewProducer(pack))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payloads", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		size, err := strconv.Atoi(r.Header.Get(gateway.MessageSizeHeader))
		require.NoError(t, err)
		envelope := body[:size]

		keyID, sig, err := gateway.ParseAuthorization(r.Header.Get(gateway.AuthorizationHeader))
		require.NoError(t, err)
		assert.Equal(t, testKeyID, keyID)
		assert.True(t, gateway.Verify(testSecret, envelope, sig))

		var msg gateway.PayloadEnvelope
		require.NoError(t, jsoniter.Unmarshal(envelope, &msg))
		assert.Equal(t, "token", msg.SessionToken)
		assert.Equal(t, "2", msg.APIVersion)

		content, err := base64.StdEncoding.DecodeString(string(body[size:]))
		require.NoError(t, err)
		assert.Equal(t, expected, content)

		digest, err := gateway.DecodeDigest(msg.PayloadDigest)
		require.NoError(t, err)
		sum := sha1.Sum(content) //nolint:gosec
		assert.Equal(t, sum[:], digest)

		_, _ = w.Write(gateway.Acknowledgement)
	}))
	defer server.Close()

	tracer := mocktracer.New()
	client := gateway.New(server.URL+"/api/v1/", testKeyID, testSecret, gateway.Tracer(tracer))
	assert.Equal(t, server.URL+"/api/v1", client.URL())
	require.NoError(t, client.PostPayload(context.Background(), "token", pack))
	require.Len(t, tracer.FinishedSpans(), 1)
}

func TestPostPayload_NotAcknowledged(t *testing.T) {
	for _, reply := range []string{
		`{"status":"error","reason":"bad"}`,
		`{"status":"ok"}` + "\n",
		`{"status": "ok"}`,
		`{"status":"o`,
		``,
	} {
		reply := reply
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, reply)
		}))

		err := gateway.New(server.URL, testKeyID, testSecret).PostPayload(context.Background(), "token", testPack(t, "x"))
		require.Errorf(t, err, "reply %q", reply)
		assert.Truef(t, errors.Is(err, status.ErrNotAcknowledged), "reply %q", reply)
		server.Close()
	}
}

func TestPostPayload_Transport(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := gateway.New(url, testKeyID, testSecret).PostPayload(context.Background(), "token", testPack(t, "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrTransport))
}

func TestAcquireLease(t *testing.T) {
	replies := map[string]string{
		"repo/ok":      `{"status":"ok","session_token":"tok"}`,
		"repo/busy":    `{"status":"path_busy","time_remaining":"10s"}`,
		"repo/refused": `{"status":"error","reason":"no such repository"}`,
		"repo/garbled": `<html>`,
		"repo/notoken": `{"status":"ok"}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/leases", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, sig, err := gateway.ParseAuthorization(r.Header.Get(gateway.AuthorizationHeader))
		require.NoError(t, err)
		assert.True(t, gateway.Verify(testSecret, body, sig))

		var req gateway.LeaseRequest
		require.NoError(t, jsoniter.Unmarshal(body, &req))
		_, _ = io.WriteString(w, replies[req.Path])
	}))
	defer server.Close()
	client := gateway.New(server.URL, testKeyID, testSecret)
	ctx := context.Background()

	token, err := client.AcquireLease(ctx, "repo/ok")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = client.AcquireLease(ctx, "repo/busy")
	assert.True(t, errors.Is(err, status.ErrPathBusy))
	assert.Contains(t, err.Error(), "10s")

	_, err = client.AcquireLease(ctx, "repo/refused")
	assert.True(t, errors.Is(err, status.ErrLeaseRefused))
	assert.Contains(t, err.Error(), "no such repository")

	_, err = client.AcquireLease(ctx, "repo/garbled")
	assert.True(t, errors.Is(err, status.ErrMalformedReply))

	_, err = client.AcquireLease(ctx, "repo/notoken")
	assert.True(t, errors.Is(err, status.ErrMalformedReply))
}

func TestDropLease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, sig, err := gateway.ParseAuthorization(r.Header.Get(gateway.AuthorizationHeader))
		require.NoError(t, err)

		switch r.URL.Path {
		case "/leases/good":
			assert.True(t, gateway.Verify(testSecret, []byte("good"), sig))
			_, _ = w.Write(gateway.Acknowledgement)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"status":"error","reason":"invalid session token"}`)
		}
	}))
	defer server.Close()
	client := gateway.New(server.URL, testKeyID, testSecret)

	require.NoError(t, client.DropLease(context.Background(), "good"))

	err := client.DropLease(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotAcknowledged))
	assert.Contains(t, err.Error(), "invalid session token")
}

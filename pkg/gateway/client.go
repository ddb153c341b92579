// Copyright © 2018 One Concern

package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/packpub/pkg/gateway/status"
	"github.com/oneconcern/packpub/pkg/objectpack"
	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 5 * time.Minute
	userAgent      = "packpub"

	// replies are small JSON documents
	maxReplySize = 64 * 1024
)

// Client to a repository gateway, authenticated with a key id and its secret
type Client struct {
	apiURL     string
	keyID      string
	secret     string
	apiVersion int
	http       *http.Client
	tr         opentracing.Tracer
	l          *zap.Logger
}

// New builds a gateway client for the API rooted at apiURL
func New(apiURL, keyID, secret string, opts ...Option) *Client {
	c := &Client{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		keyID:      keyID,
		secret:     secret,
		apiVersion: DefaultAPIVersion,
		http:       &http.Client{Timeout: defaultTimeout},
		tr:         opentracing.GlobalTracer(),
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(c)
	}
	return c
}

// URL of the gateway API
func (c *Client) URL() string {
	return c.apiURL
}

// PostPayload uploads a sealed object pack within the session identified by token.
//
// A nil error is returned only when the gateway replied with the canonical acknowledgement.
func (c *Client) PostPayload(ctx context.Context, token string, pack *objectpack.Pack) error {
	span := c.spanFromContext(ctx, "gateway.PostPayload")
	defer span.Finish()

	producer := objectpack.NewProducer(pack)
	envelope, err := jsoniter.Marshal(PayloadEnvelope{
		SessionToken:  token,
		PayloadDigest: EncodeDigest(producer.Digest()),
		APIVersion:    versionString(c.apiVersion),
	})
	if err != nil {
		return status.ErrMalformedRequest.Wrap(err)
	}

	var body bytes.Buffer
	body.Grow(len(envelope) + base64.StdEncoding.EncodedLen(int(producer.Len())))
	body.Write(envelope)
	enc := base64.NewEncoder(base64.StdEncoding, &body)
	if _, err = io.Copy(enc, producer); err != nil {
		return status.ErrMalformedRequest.Wrap(err)
	}
	if err = enc.Close(); err != nil {
		return status.ErrMalformedRequest.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/payloads", &body)
	if err != nil {
		return status.ErrTransport.Wrap(err)
	}
	req.Header.Set(AuthorizationHeader, Authorization(c.keyID, Sign(c.secret, envelope)))
	req.Header.Set(MessageSizeHeader, strconv.Itoa(len(envelope)))

	reply, code, err := c.do(req)
	if err != nil {
		return err
	}
	if !bytes.Equal(reply, Acknowledgement) {
		return status.ErrNotAcknowledged.WrapWithLog(c.l,
			fmt.Errorf("HTTP %d: %q", code, truncate(reply)),
			zap.String("digest", producer.DigestString()),
		)
	}

	c.l.Debug("payload accepted",
		zap.String("digest", producer.DigestString()),
		zap.Int64("size", producer.Len()),
		zap.Int("objects", pack.NumObjects()),
	)
	return nil
}

// AcquireLease requests a publish lease on a path of the repository and returns the session token.
//
// When another publisher holds the path, ErrPathBusy is returned.
func (c *Client) AcquireLease(ctx context.Context, path string) (string, error) {
	span := c.spanFromContext(ctx, "gateway.AcquireLease")
	defer span.Finish()

	msg, err := jsoniter.Marshal(LeaseRequest{Path: path, APIVersion: versionString(c.apiVersion)})
	if err != nil {
		return "", status.ErrMalformedRequest.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/leases", bytes.NewReader(msg))
	if err != nil {
		return "", status.ErrTransport.Wrap(err)
	}
	req.Header.Set(AuthorizationHeader, Authorization(c.keyID, Sign(c.secret, msg)))
	req.Header.Set("Content-Type", "application/json")

	body, code, err := c.do(req)
	if err != nil {
		return "", err
	}
	var reply Reply
	if err = jsoniter.Unmarshal(body, &reply); err != nil {
		return "", status.ErrMalformedReply.Wrap(fmt.Errorf("HTTP %d: %v", code, err))
	}

	switch reply.Status {
	case StatusOK:
		if reply.SessionToken == "" {
			return "", status.ErrMalformedReply.Wrap(fmt.Errorf("no session token"))
		}
		c.l.Info("lease acquired", zap.String("lease_path", path))
		return reply.SessionToken, nil
	case StatusPathBusy:
		return "", status.ErrPathBusy.Wrap(fmt.Errorf("%s: time remaining %s", path, reply.TimeRemaining))
	case StatusError:
		return "", status.ErrLeaseRefused.WrapWithLog(c.l, fmt.Errorf("%s", reply.Reason), zap.String("lease_path", path))
	default:
		return "", status.ErrMalformedReply.Wrap(fmt.Errorf("unexpected status %q", reply.Status))
	}
}

// DropLease releases the lease identified by its session token
func (c *Client) DropLease(ctx context.Context, token string) error {
	span := c.spanFromContext(ctx, "gateway.DropLease")
	defer span.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.apiURL+"/leases/"+url.PathEscape(token), nil)
	if err != nil {
		return status.ErrTransport.Wrap(err)
	}
	req.Header.Set(AuthorizationHeader, Authorization(c.keyID, Sign(c.secret, []byte(token))))

	body, code, err := c.do(req)
	if err != nil {
		return err
	}
	if !bytes.Equal(body, Acknowledgement) {
		var reply Reply
		if jsoniter.Unmarshal(body, &reply) == nil && reply.Reason != "" {
			return status.ErrNotAcknowledged.Wrap(fmt.Errorf("HTTP %d: %s", code, reply.Reason))
		}
		return status.ErrNotAcknowledged.Wrap(fmt.Errorf("HTTP %d: %q", code, truncate(body)))
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, status.ErrTransport.WrapWithLog(c.l, err, zap.String("url", req.URL.String()))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, resp.StatusCode, status.ErrTransport.WrapWithLog(c.l, err, zap.String("url", req.URL.String()))
	}
	return body, resp.StatusCode, nil
}

func (c *Client) spanFromContext(ctx context.Context, name string) opentracing.Span {
	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		return c.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	}
	return c.tr.StartSpan(name)
}

func truncate(b []byte) string {
	const maxShown = 128
	if len(b) > maxShown {
		return string(b[:maxShown]) + "..."
	}
	return string(b)
}

// Copyright © 2018 One Concern

// Package receiver implements the receiving side of the gateway publish protocol.
//
// It grants leases on repository paths, authenticates publishers with their key id and
// secret, verifies the digest and the format of posted object packs, then stores them.
package receiver

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // the payload digest is SHA-1
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	units "github.com/docker/go-units"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/packpub/pkg/errors"
	"github.com/oneconcern/packpub/pkg/gateway"
	"github.com/oneconcern/packpub/pkg/gateway/status"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/oneconcern/packpub/pkg/storage"
	storagestatus "github.com/oneconcern/packpub/pkg/storage/status"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultLeaseTTL is the duration of a lease which is not dropped
	DefaultLeaseTTL = 2 * time.Hour

	// DefaultMaxPayloadSize bounds the size of a payload request body
	DefaultMaxPayloadSize int64 = 512 * units.MiB

	maxLeaseRequestSize = 64 * units.KiB
)

// ServerParams configures a receiving gateway
type ServerParams struct {
	// Keys maps key ids to their secret
	Keys map[string]string

	// Stores receive accepted payloads
	Stores []storage.MultiStoreUnit

	// LeaseDir is the location of the lease database. Leases are kept in memory when empty.
	LeaseDir string

	LeaseTTL       time.Duration
	MaxPayloadSize int64
	Logger         *zap.Logger

	// Registerer receives the prometheus metrics of the server. Metrics are not registered when nil.
	Registerer prometheus.Registerer
}

// Server is a receiving gateway
type Server struct {
	params ServerParams
	leases *leaseRegistry
	m      *serverMetrics
	l      *zap.Logger
}

// NewServer builds a receiving gateway. It must be closed to release the lease database.
func NewServer(params ServerParams) (*Server, error) {
	if params.LeaseTTL <= 0 {
		params.LeaseTTL = DefaultLeaseTTL
	}
	if params.MaxPayloadSize <= 0 {
		params.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if len(params.Stores) == 0 {
		return nil, fmt.Errorf("a receiving gateway requires at least one store")
	}

	leases, err := openRegistry(params.LeaseDir, params.LeaseTTL)
	if err != nil {
		return nil, err
	}
	return &Server{params: params, leases: leases, m: newServerMetrics(params.Registerer, leases), l: params.Logger}, nil
}

// Close the lease database
func (s *Server) Close() error {
	return s.leases.Close()
}

// PayloadKey is the storage key of an accepted payload
func PayloadKey(token string, digest []byte) string {
	return "payloads/" + token + "/" + hex.EncodeToString(digest)
}

/* handlers */

// HandleAcquireLease grants a lease on a path
func (s *Server) HandleAcquireLease() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxLeaseRequestSize))
		if err != nil {
			s.replyError(w, http.StatusBadRequest, status.ErrMalformedRequest.Wrap(err))
			return
		}
		if err = s.authenticate(r, body); err != nil {
			s.replyError(w, http.StatusUnauthorized, err)
			return
		}

		var req gateway.LeaseRequest
		if err = jsoniter.Unmarshal(body, &req); err != nil || req.Path == "" {
			s.replyError(w, http.StatusBadRequest, status.ErrMalformedRequest.Wrap(err))
			return
		}

		token, remaining, err := s.leases.Acquire(req.Path)
		switch {
		case errors.Is(err, status.ErrPathBusy):
			s.m.leases.WithLabelValues(resultBusy).Inc()
			s.reply(w, http.StatusConflict, gateway.Reply{
				Status:        gateway.StatusPathBusy,
				TimeRemaining: remaining.Round(time.Second).String(),
			})
			return
		case err != nil:
			s.m.leases.WithLabelValues(resultRejected).Inc()
			s.replyError(w, http.StatusInternalServerError, err)
			return
		}

		s.m.leases.WithLabelValues(resultAccepted).Inc()
		s.l.Info("lease granted", zap.String("lease_path", req.Path), zap.String("token", token))
		s.reply(w, http.StatusOK, gateway.Reply{Status: gateway.StatusOK, SessionToken: token})
	}
}

// HandleDropLease releases a lease
func (s *Server) HandleDropLease() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		if err := s.authenticate(r, []byte(token)); err != nil {
			s.replyError(w, http.StatusUnauthorized, err)
			return
		}
		if err := s.leases.Drop(token); err != nil {
			s.m.drops.WithLabelValues(resultRejected).Inc()
			code := http.StatusInternalServerError
			if errors.Is(err, status.ErrInvalidToken) {
				code = http.StatusNotFound
			}
			s.replyError(w, code, err)
			return
		}

		s.m.drops.WithLabelValues(resultAccepted).Inc()
		s.l.Info("lease dropped", zap.String("token", token))
		s.acknowledge(w)
	}
}

// HandlePayload receives an object pack
func (s *Server) HandlePayload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reject := func(code int, err error) {
			s.m.payloads.WithLabelValues(resultRejected).Inc()
			s.replyError(w, code, err)
		}

		envelopeSize, err := strconv.Atoi(r.Header.Get(gateway.MessageSizeHeader))
		if err != nil || envelopeSize <= 0 {
			reject(http.StatusBadRequest, status.ErrMalformedRequest.Wrap(fmt.Errorf("invalid %s header", gateway.MessageSizeHeader)))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, s.params.MaxPayloadSize+1))
		if err != nil {
			reject(http.StatusBadRequest, status.ErrMalformedRequest.Wrap(err))
			return
		}
		if int64(len(body)) > s.params.MaxPayloadSize {
			reject(http.StatusRequestEntityTooLarge, status.ErrMalformedRequest.Wrap(fmt.Errorf("payload exceeds %s", units.BytesSize(float64(s.params.MaxPayloadSize)))))
			return
		}
		if envelopeSize > len(body) {
			reject(http.StatusBadRequest, status.ErrMalformedRequest.Wrap(fmt.Errorf("truncated envelope")))
			return
		}

		msg := body[:envelopeSize]
		if err = s.authenticate(r, msg); err != nil {
			reject(http.StatusUnauthorized, err)
			return
		}

		key, size, err := s.storePayload(r.Context(), msg, body[envelopeSize:])
		if err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, status.ErrInvalidToken) {
				code = http.StatusForbidden
			}
			reject(code, err)
			return
		}

		s.m.payloads.WithLabelValues(resultAccepted).Inc()
		s.m.payloadBytes.Add(float64(size))
		s.l.Info("payload stored", zap.String("key", key), zap.Int("size", size))
		s.acknowledge(w)
	}
}

func (s *Server) storePayload(ctx context.Context, msg, encoded []byte) (string, int, error) {
	var envelope gateway.PayloadEnvelope
	if err := jsoniter.Unmarshal(msg, &envelope); err != nil {
		return "", 0, status.ErrMalformedRequest.Wrap(err)
	}
	if _, err := s.leases.Lookup(envelope.SessionToken); err != nil {
		return "", 0, err
	}
	digest, err := gateway.DecodeDigest(envelope.PayloadDigest)
	if err != nil {
		return "", 0, err
	}

	pack := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(pack, encoded)
	if err != nil {
		return "", 0, status.ErrMalformedRequest.Wrap(err)
	}
	pack = pack[:n]

	sum := sha1.Sum(pack) //nolint:gosec
	if !bytes.Equal(sum[:], digest) {
		return "", 0, status.ErrDigestMismatch
	}
	if _, err = objectpack.Parse(bytes.NewReader(pack)); err != nil {
		return "", 0, status.ErrMalformedRequest.Wrap(err)
	}

	key := PayloadKey(envelope.SessionToken, digest)
	if err = storage.MultiPut(ctx, s.params.Stores, key, pack, storage.NoOverWrite); err != nil {
		if !errors.Is(err, storagestatus.ErrExists) {
			return "", 0, err
		}
		// the same payload posted again
		s.l.Debug("payload already stored", zap.String("key", key))
	}
	return key, n, nil
}

func (s *Server) authenticate(r *http.Request, msg []byte) error {
	keyID, signature, err := gateway.ParseAuthorization(r.Header.Get(gateway.AuthorizationHeader))
	if err != nil {
		return err
	}
	secret, ok := s.params.Keys[keyID]
	if !ok || !gateway.Verify(secret, msg, signature) {
		return status.ErrUnauthorized.Wrap(fmt.Errorf("key id %q", keyID))
	}
	return nil
}

func (s *Server) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gateway.Acknowledgement)
}

func (s *Server) reply(w http.ResponseWriter, code int, reply gateway.Reply) {
	b, err := jsoniter.Marshal(reply)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (s *Server) replyError(w http.ResponseWriter, code int, err error) {
	s.l.Warn("request rejected", zap.Int("code", code), zap.Error(err))
	s.reply(w, code, gateway.Reply{Status: gateway.StatusError, Reason: err.Error()})
}

// InitRouter exposes the gateway API
func InitRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/leases", srv.HandleAcquireLease())
	r.Delete("/leases/{token}", srv.HandleDropLease())
	r.Post("/payloads", srv.HandlePayload())

	return r
}

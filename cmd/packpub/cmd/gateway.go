// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	units "github.com/docker/go-units"
	"github.com/oneconcern/packpub/pkg/gateway/receiver"
	"github.com/oneconcern/packpub/pkg/storage"
	"github.com/oneconcern/packpub/pkg/storage/gcs"
	"github.com/oneconcern/packpub/pkg/storage/localfs"
	"github.com/oneconcern/packpub/pkg/storage/sthree"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
)

const shutdownTimeout = 30 * time.Second

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Commands to run a receiving gateway",
	Long: `A receiving gateway grants leases and stores the object packs posted by publishers.

It is meant for development and tests.`,
}

var gatewayServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gateway API",
	Long: `Serve the gateway API over HTTP.

Publishers are authenticated against a yaml file of key ids and secrets:

  publisher: s3cr3t

Accepted payloads are stored under payloads/<session token>/<digest> in a local
directory, in an S3 bucket with --store s3://bucket, or in a Google Cloud Storage
bucket with --store gs://bucket.

Prometheus metrics are exposed on /metrics.`,
	Example: `packpub gateway serve --keys keys.yaml --store s3://packs --mirror ./backup`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		l := logger()

		keys, err := readKeys(packpubFlags.serve.KeysFile)
		if err != nil {
			wrapFatalln("read gateway keys", err)
			return
		}
		maxPayload, err := units.RAMInBytes(packpubFlags.serve.MaxPayloadSize)
		if err != nil {
			wrapFatalln("invalid max payload size", err)
			return
		}

		stores := make([]storage.MultiStoreUnit, 0, 2)
		primary, err := openStore(ctx, packpubFlags.serve.Store, l)
		if err != nil {
			wrapFatalln("open store "+packpubFlags.serve.Store, err)
			return
		}
		stores = append(stores, storage.MultiStoreUnit{Store: primary})
		if packpubFlags.serve.Mirror != "" {
			mirror, merr := openStore(ctx, packpubFlags.serve.Mirror, l)
			if merr != nil {
				wrapFatalln("open mirror store "+packpubFlags.serve.Mirror, merr)
				return
			}
			stores = append(stores, storage.MultiStoreUnit{Store: mirror, TolerateFailure: true})
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		srv, err := receiver.NewServer(receiver.ServerParams{
			Keys:           keys,
			Stores:         stores,
			LeaseDir:       packpubFlags.serve.LeaseDir,
			LeaseTTL:       packpubFlags.serve.LeaseTTL,
			MaxPayloadSize: maxPayload,
			Logger:         l,
			Registerer:     reg,
		})
		if err != nil {
			wrapFatalln("start gateway", err)
			return
		}
		defer func() {
			_ = srv.Close()
		}()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/", receiver.Instrument(receiver.InitRouter(srv), opentracing.GlobalTracer(), l))

		server := &http.Server{
			Addr:              packpubFlags.serve.Address,
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
		}

		l.Info("gateway listening", zap.String("address", server.Addr), zap.Int("keys", len(keys)), zap.Stringer("store", primary))
		if err = serveUntilSignaled(ctx, server, l); err != nil {
			wrapFatalln("gateway server", err)
		}
	},
}

func readKeys(pth string) (map[string]string, error) {
	if pth == "" {
		return nil, errors.New("a keys file is required")
	}
	b, err := afero.ReadFile(appFs, pth)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string)
	if err = yaml.Unmarshal(b, &keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("no key found in " + pth)
	}
	return keys, nil
}

func openStore(ctx context.Context, location string, l *zap.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket := strings.TrimPrefix(location, "s3://")
		var opts []sthree.Option
		if packpubFlags.serve.S3Region != "" {
			opts = append(opts, sthree.Region(packpubFlags.serve.S3Region))
		}
		if packpubFlags.serve.S3Endpoint != "" {
			opts = append(opts, sthree.Endpoint(packpubFlags.serve.S3Endpoint))
		}
		store, err = sthree.New(ctx, bucket, opts...)
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(location, "gs://"):
		store, err = gcs.New(ctx, strings.TrimPrefix(location, "gs://"), gcs.Logger(l))
		if err != nil {
			return nil, err
		}
	default:
		if err = appFs.MkdirAll(location, 0o700); err != nil {
			return nil, err
		}
		store = localfs.New(afero.NewBasePathFs(appFs, location))
	}
	return storage.Instrument(opentracing.GlobalTracer(), l, store), nil
}

// serveUntilSignaled runs the server until it fails, or until SIGINT or SIGTERM is received
func serveUntilSignaled(ctx context.Context, server *http.Server, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		l.Info("shutting down the gateway")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})
	return group.Wait()
}

func init() {
	registerServeFlags(gatewayServeCmd.Flags())

	gatewayCmd.AddCommand(gatewayServeCmd)
	rootCmd.AddCommand(gatewayCmd)
}

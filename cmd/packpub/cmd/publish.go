// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/packpub/internal"
	"github.com/oneconcern/packpub/pkg/gateway"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/oneconcern/packpub/pkg/session"
	"github.com/oneconcern/packpub/pkg/upload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a directory to the gateway",
	Long: `Publish every regular file of a local directory under a lease on a repository path.

Files are uploaded as content-addressed objects, batched into object packs.
Each published file is printed with its content hash.

The lease is released when the publish is done, unless --keep-lease is set.`,
	Example: `packpub publish --path ./build --lease-path repo.example.org/software/v1`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "publish", err)
		}(time.Now())

		ctx := context.Background()
		l := logger()
		maxPackSize, algo, err := publishSettings()
		if err != nil {
			wrapFatalln("invalid publish settings", err)
			return
		}

		if pth := packpubFlags.publish.MemProf; pth != "" {
			stop := make(chan struct{})
			internal.MemPoll(internal.MemPollParams{LogEach: time.Second, Logger: l}, stop)
			defer func() {
				close(stop)
				if e := internal.WriteHeapProfile(pth); e != nil {
					l.Warn("could not write heap profile", zap.String("path", pth), zap.Error(e))
				}
			}()
		}

		client := gatewayClient(l)
		uploader, err := upload.Open(ctx, client, packpubFlags.publish.LeasePath,
			upload.Hash(algo),
			upload.Exclude(packpubFlags.publish.Excludes...),
			upload.FS(appFs),
			upload.Logger(l),
			upload.SessionOptions(
				session.MaxPackSize(maxPackSize),
				session.DropLease(!packpubFlags.publish.KeepLease),
				session.WithMetrics(packpubFlags.root.metrics.IsEnabled()),
			),
		)
		if err != nil {
			wrapFatalln("open publish session", err)
			return
		}

		err = uploader.UploadTree(ctx, packpubFlags.publish.Path, func(pth string, id objectpack.Hash) error {
			logStdOut("%s  %s\n", color.HiBlackString(id.String()), pth)
			return nil
		})
		if err != nil {
			_ = uploader.Close(ctx)
			wrapFatalln("publish "+packpubFlags.publish.Path, err)
			return
		}

		if err = uploader.Close(ctx); err != nil {
			wrapFatalln("publish session failed", err)
			return
		}
		st := uploader.Stats()
		infoLogger.Printf("published %s in %d packs", units.BytesSize(float64(st.BytesDispatched)), st.JobsSubmitted)
		if packpubFlags.publish.KeepLease {
			infoLogger.Printf("lease kept, token: %s", uploader.Token())
		}
	},
}

func publishSettings() (uint64, objectpack.Algorithm, error) {
	var maxPackSize uint64
	if s := packpubFlags.publish.MaxPackSize; s != "" {
		size, err := units.RAMInBytes(s)
		if err != nil {
			return 0, "", err
		}
		if size <= 0 {
			return 0, "", fmt.Errorf("max pack size must be positive: %s", s)
		}
		maxPackSize = uint64(size)
	}

	algo := objectpack.Algorithm(packpubFlags.publish.Hash)
	switch algo {
	case "":
		algo = objectpack.SHA1
	case objectpack.SHA1, objectpack.Blake2b:
	default:
		return 0, "", fmt.Errorf("unsupported hash algorithm %q", algo)
	}
	return maxPackSize, algo, nil
}

func gatewayClient(l *zap.Logger) *gateway.Client {
	if packpubFlags.gateway.URL == "" {
		wrapFatalln("the gateway URL is required: set --gateway-url or gateway_url in the config", nil)
	}
	if packpubFlags.gateway.KeyID == "" || packpubFlags.gateway.Secret == "" {
		wrapFatalln("the publisher key id and secret are required", nil)
	}
	return gateway.New(packpubFlags.gateway.URL, packpubFlags.gateway.KeyID, packpubFlags.gateway.Secret, gateway.Logger(l))
}

func init() {
	requireFlags(publishCmd,
		addPathFlag(publishCmd),
		addLeasePathFlag(publishCmd, &packpubFlags.publish.LeasePath),
	)
	addMaxPackSizeFlag(publishCmd)
	addHashFlag(publishCmd)
	addKeepLeaseFlag(publishCmd)
	addMemProfFlag(publishCmd)
	addExcludeFlag(publishCmd)

	rootCmd.AddCommand(publishCmd)
}

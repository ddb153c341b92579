// Copyright © 2018 One Concern

package cmd

import (
	"time"

	units "github.com/docker/go-units"
	"github.com/oneconcern/packpub/pkg/gateway/receiver"
	"github.com/oneconcern/packpub/pkg/objectpack"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type flagsT struct {
	root struct {
		logLevel string
		metrics  metricsFlags
		cpuProf  bool
	}
	gateway struct {
		URL    string
		KeyID  string
		Secret string
	}
	publish struct {
		Path        string
		LeasePath   string
		MaxPackSize string
		Hash        string
		KeepLease   bool
		MemProf     string
		Excludes    []string
	}
	lease struct {
		Path  string
		Token string
	}
	serve struct {
		Address        string
		KeysFile       string
		Store          string
		Mirror         string
		LeaseDir       string
		LeaseTTL       time.Duration
		MaxPayloadSize string
		S3Region       string
		S3Endpoint     string
	}
	config struct {
		Output string
	}
}

var packpubFlags = flagsT{}

func addLogLevel(cmd *cobra.Command) string {
	loglevel := "loglevel"
	cmd.PersistentFlags().StringVar(&packpubFlags.root.logLevel, loglevel, "", "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return loglevel
}

func addMetricsFlag(cmd *cobra.Command) string {
	c := "metrics"
	packpubFlags.root.metrics.Enabled = new(bool)
	cmd.PersistentFlags().BoolVar(packpubFlags.root.metrics.Enabled, c, false, `Toggle metrics collection, reported in the logs`)
	return c
}

func addMetricsPeriodFlag(cmd *cobra.Command) string {
	c := "metrics-period"
	cmd.PersistentFlags().DurationVar(&packpubFlags.root.metrics.Period, c, 10*time.Second, `How often collected metrics are reported`)
	return c
}

func addCPUProfFlag(cmd *cobra.Command) string {
	c := "cpuprof"
	cmd.PersistentFlags().BoolVar(&packpubFlags.root.cpuProf, c, false, "Toggle runtime profiling, written to cpu.prof")
	return c
}

func addExcludeFlag(cmd *cobra.Command) string {
	c := "exclude"
	cmd.Flags().StringSliceVar(&packpubFlags.publish.Excludes, c, nil, `Glob patterns of paths not to publish, relative to --path (e.g. "**/*.tmp")`)
	return c
}

func addMemProfFlag(cmd *cobra.Command) string {
	c := "memprof"
	cmd.Flags().StringVar(&packpubFlags.publish.MemProf, c, "", "Log the heap growth during the publish, then write a heap profile to this file")
	return c
}

func addGatewayURLFlag(cmd *cobra.Command) string {
	c := "gateway-url"
	cmd.PersistentFlags().StringVar(&packpubFlags.gateway.URL, c, "", "The URL of the gateway API, e.g. http://gateway.example.org:4929/api/v1")
	return c
}

func addKeyIDFlag(cmd *cobra.Command) string {
	c := "key-id"
	cmd.PersistentFlags().StringVar(&packpubFlags.gateway.KeyID, c, "", "The publisher key id known to the gateway")
	return c
}

func addSecretFlag(cmd *cobra.Command) string {
	c := "secret"
	cmd.PersistentFlags().StringVar(&packpubFlags.gateway.Secret, c, "", "The publisher secret. Prefer setting PACKPUB_SECRET or the config file")
	return c
}

func addPathFlag(cmd *cobra.Command) string {
	path := "path"
	cmd.Flags().StringVar(&packpubFlags.publish.Path, path, "", "The path to the local directory to publish")
	return path
}

func addLeasePathFlag(cmd *cobra.Command, target *string) string {
	c := "lease-path"
	cmd.Flags().StringVar(target, c, "", "The repository path to lease, e.g. repo.example.org/software/v1")
	return c
}

func addMaxPackSizeFlag(cmd *cobra.Command) string {
	c := "max-pack-size"
	cmd.Flags().StringVar(&packpubFlags.publish.MaxPackSize, c, "",
		"The maximum size of an object pack, e.g. 64MiB (defaults to "+units.BytesSize(float64(objectpack.DefaultLimit))+")")
	return c
}

func addHashFlag(cmd *cobra.Command) string {
	c := "hash"
	cmd.Flags().StringVar(&packpubFlags.publish.Hash, c, "", "The content hash algorithm: sha1 or blake2b")
	return c
}

func addKeepLeaseFlag(cmd *cobra.Command) string {
	c := "keep-lease"
	cmd.Flags().BoolVar(&packpubFlags.publish.KeepLease, c, false, "Do not release the lease when the publish is done")
	return c
}

func addTokenFlag(cmd *cobra.Command) string {
	c := "token"
	cmd.Flags().StringVar(&packpubFlags.lease.Token, c, "", "The session token of the lease")
	return c
}

// registerServeFlags registers the settings of a receiving gateway on a flag set
func registerServeFlags(fs *pflag.FlagSet) {
	fs.StringVar(&packpubFlags.serve.Address, "address", ":4929", "The address the gateway listens on")
	fs.StringVar(&packpubFlags.serve.KeysFile, "keys", "", "A yaml file mapping key ids to their secret")
	fs.StringVar(&packpubFlags.serve.Store, "store", ".packpub/objects", "Where accepted payloads are stored: a local directory, s3://bucket or gs://bucket")
	fs.StringVar(&packpubFlags.serve.Mirror, "mirror", "", "An optional store which receives a copy of the payloads. Failures on the mirror are tolerated")
	fs.StringVar(&packpubFlags.serve.LeaseDir, "lease-dir", "", "The directory of the lease database. Leases are kept in memory when empty")
	fs.DurationVar(&packpubFlags.serve.LeaseTTL, "lease-ttl", receiver.DefaultLeaseTTL, "The duration of a lease")
	fs.StringVar(&packpubFlags.serve.MaxPayloadSize, "max-payload-size", units.BytesSize(float64(receiver.DefaultMaxPayloadSize)), "The maximum size of a payload request")
	fs.StringVar(&packpubFlags.serve.S3Region, "s3-region", "", "The region of s3 stores")
	fs.StringVar(&packpubFlags.serve.S3Endpoint, "s3-endpoint", "", "An S3-compatible endpoint for s3 stores")
}

func addConfigOutputFlag(cmd *cobra.Command) string {
	c := "output"
	cmd.Flags().StringVar(&packpubFlags.config.Output, c, "", "Where to write the config file")
	return c
}

func requireFlags(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			wrapFatalln("mark required flag "+flag, err)
		}
	}
}

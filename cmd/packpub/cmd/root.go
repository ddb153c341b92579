// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/oneconcern/packpub/internal"
	"github.com/oneconcern/packpub/pkg/dlogger"
	"github.com/oneconcern/packpub/pkg/metrics"
	"github.com/oneconcern/packpub/pkg/metrics/exporters/zaplog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "packpub",
	Short: "packpub publishes content to a repository gateway",
	Long: `packpub publishes content-addressed objects to a repository gateway.

Objects are batched into size-bounded object packs, which are uploaded in the background
under a lease on the published path. A publish succeeds only when every pack has been
acknowledged by the gateway and every committed byte has been uploaded.

packpub also ships a receiving gateway, for development and tests.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if packpubFlags.root.cpuProf {
			stop, err := internal.StartCPUProfile("cpu.prof")
			if err != nil {
				wrapFatalln("start profiling", err)
				return
			}
			stopProfiling = stop
		}
		if packpubFlags.root.metrics.IsEnabled() {
			metrics.Init(
				metrics.WithExporter(zaplog.NewExporter(logger())),
				metrics.WithReportingPeriod(packpubFlags.root.metrics.Period),
			)
			packpubFlags.root.metrics.m = metrics.EnsureMetrics("cli", &M{}).(*M)
		}
	},
	// *PostRun functions aren't called when Run panics
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopProfiling != nil {
			stopProfiling()
			stopProfiling = nil
		}
	},
}

var stopProfiling func()

var config *CLIConfig

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addLogLevel(rootCmd)
	addMetricsFlag(rootCmd)
	addMetricsPeriodFlag(rootCmd)
	addCPUProfFlag(rootCmd)
	addGatewayURLFlag(rootCmd)
	addKeyIDFlag(rootCmd)
	addSecretFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("max_pack_size", defaultMaxPackSize)
	viper.SetDefault("hash", defaultHash)
	viper.SetDefault("drop_lease", true)
	if os.Getenv("PACKPUB_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("PACKPUB_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.packpub")
		viper.AddConfigPath("/etc/packpub")
		viper.SetConfigName("packpub")
	}

	viper.SetEnvPrefix("PACKPUB")
	viper.AutomaticEnv() // read in environment variables that match
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}

	var err error
	config, err = newConfig()
	if err != nil {
		wrapFatalln("read config", err)
		return
	}
	config.setPackpubParams(&packpubFlags)
}

func logger() *zap.Logger {
	l, err := dlogger.GetLogger(packpubFlags.root.logLevel)
	if err != nil {
		wrapFatalln("failed to set log level", err)
		return zap.NewNop()
	}
	return l
}

// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultMaxPackSize = "200MiB"
	defaultHash        = "sha1"
	configFileName     = "packpub.yaml"
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	GatewayURL  string `json:"gateway_url" yaml:"gateway_url" mapstructure:"gateway_url"`
	KeyID       string `json:"key_id" yaml:"key_id" mapstructure:"key_id"`
	Secret      string `json:"secret,omitempty" yaml:"secret,omitempty" mapstructure:"secret"`
	MaxPackSize string `json:"max_pack_size,omitempty" yaml:"max_pack_size,omitempty" mapstructure:"max_pack_size"`
	DropLease   bool   `json:"drop_lease" yaml:"drop_lease" mapstructure:"drop_lease"`
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty" mapstructure:"log_level"`
	Hash        string `json:"hash,omitempty" yaml:"hash,omitempty" mapstructure:"hash"`
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// setPackpubParams fills in flags which were not set on the command line
func (c *CLIConfig) setPackpubParams(flags *flagsT) {
	if flags.gateway.URL == "" {
		flags.gateway.URL = c.GatewayURL
	}
	if flags.gateway.KeyID == "" {
		flags.gateway.KeyID = c.KeyID
	}
	if flags.gateway.Secret == "" {
		flags.gateway.Secret = c.Secret
	}
	if flags.publish.MaxPackSize == "" {
		flags.publish.MaxPackSize = c.MaxPackSize
	}
	if flags.publish.Hash == "" {
		flags.publish.Hash = c.Hash
	}
	if !c.DropLease {
		flags.publish.KeepLease = true
	}
	if flags.root.logLevel == "" {
		flags.root.logLevel = c.LogLevel
	}
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage a config",
	Long: `Commands to manage packpub CLI config.

Configuration for packpub is the common set of flags that are needed for most commands and do not change across runs,
such as the gateway URL and the publisher key.

The config file is looked up in ., $HOME/.packpub and /etc/packpub, or set with $PACKPUB_CONFIG.
Every key may be overridden by an environment variable prefixed with PACKPUB_ (e.g. PACKPUB_GATEWAY_URL).`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

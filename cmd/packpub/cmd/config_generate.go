// Copyright © 2018 One Concern

package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// appFs is patched over during test
var appFs = afero.NewOsFs()

var configGen = &cobra.Command{
	Use:   "generate",
	Short: "Generate a config",
	Long:  "Generate a config file from the current flags. The config file is placed in $HOME/.packpub/packpub.yaml unless --output is set.",
	Run: func(cmd *cobra.Command, args []string) {
		target := packpubFlags.config.Output
		if target == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				wrapFatalln("could not get home directory for user", err)
				return
			}
			target = filepath.Join(home, ".packpub", configFileName)
		}

		cfg := CLIConfig{
			GatewayURL:  packpubFlags.gateway.URL,
			KeyID:       packpubFlags.gateway.KeyID,
			Secret:      packpubFlags.gateway.Secret,
			MaxPackSize: packpubFlags.publish.MaxPackSize,
			DropLease:   !packpubFlags.publish.KeepLease,
			LogLevel:    packpubFlags.root.logLevel,
			Hash:        packpubFlags.publish.Hash,
		}
		o, err := yaml.Marshal(cfg)
		if err != nil {
			wrapFatalln("serialize config to yaml", err)
			return
		}
		if err = appFs.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			wrapFatalln("create config directory", err)
			return
		}
		if err = afero.WriteFile(appFs, target, o, 0o600); err != nil {
			wrapFatalln("write config file", err)
			return
		}
		infoLogger.Printf("config written to %s", target)
	},
}

func init() {
	addConfigOutputFlag(configGen)
	addMaxPackSizeFlag(configGen)
	addHashFlag(configGen)
	addKeepLeaseFlag(configGen)

	configCmd.AddCommand(configGen)
}

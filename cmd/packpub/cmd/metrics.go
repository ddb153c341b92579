// Copyright © 2018 One Concern

package cmd

import (
	"time"

	"github.com/oneconcern/packpub/pkg/metrics"
)

type metricsFlags struct {
	Enabled *bool         `json:"enabled,omitempty" yaml:"enabled,omitempty"` // pointer because we want to distinguish unset from false
	Period  time.Duration `json:"period,omitempty" yaml:"period,omitempty"`
	m       *M
}

func (m metricsFlags) IsEnabled() bool {
	return m.Enabled != nil && *m.Enabled
}

// M describes metrics for the cmd package
type M struct {
	Usage metrics.UsageMetrics `group:"telemetry" description:"usage stats for packpub CLI"`
}

// cliUsage records a usage metric in the CLI context in a single go.
// This is intended to be used in some defer statement.
//
// Metrics are flushed as soon as the command is done.
func cliUsage(t0 time.Time, command string, err error) {
	if packpubFlags.root.metrics.IsEnabled() && packpubFlags.root.metrics.m != nil {
		packpubFlags.root.metrics.m.Usage.UsedAll(t0, command)(err)
		metrics.Flush()
	}
}

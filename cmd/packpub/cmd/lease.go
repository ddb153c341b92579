// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var leaseCmd = &cobra.Command{
	Use:   "lease",
	Short: "Commands to manage leases",
	Long: `Commands to manage publish leases on the gateway.

A lease grants exclusive publishing rights on a repository path, and on all paths below it.`,
}

var leaseAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire a lease",
	Long:  "Acquire a lease on a repository path and print its session token",
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "lease acquire", err)
		}(time.Now())

		token, err := gatewayClient(logger()).AcquireLease(context.Background(), packpubFlags.lease.Path)
		if err != nil {
			wrapFatalln("acquire lease on "+packpubFlags.lease.Path, err)
			return
		}
		logStdOut("%s\n", token)
	},
}

var leaseDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop a lease",
	Long:  "Release the lease identified by its session token",
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "lease drop", err)
		}(time.Now())

		if err = gatewayClient(logger()).DropLease(context.Background(), packpubFlags.lease.Token); err != nil {
			wrapFatalln("drop lease", err)
			return
		}
		infoLogger.Println("lease dropped")
	},
}

func init() {
	requireFlags(leaseAcquireCmd, addLeasePathFlag(leaseAcquireCmd, &packpubFlags.lease.Path))
	requireFlags(leaseDropCmd, addTokenFlag(leaseDropCmd))

	leaseCmd.AddCommand(leaseAcquireCmd)
	leaseCmd.AddCommand(leaseDropCmd)
	rootCmd.AddCommand(leaseCmd)
}

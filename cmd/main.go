// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixstack/helixctl/cmd/converge"
	"github.com/helixstack/helixctl/cmd/render"
	"github.com/helixstack/helixctl/pkg/about"
	"github.com/helixstack/helixctl/pkg/dev"
	"github.com/helixstack/helixctl/pkg/utils/log"
)

func main() {
	buildInfo := about.GetBuildInfo()

	rootCmd := &cobra.Command{
		Use:           "helixctl",
		Short:         "Bootstrap a cluster, a service mesh and the helix application, idempotently",
		Version:       buildInfo.VersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			log.InitLogger()
		},
	}
	rootCmd.AddCommand(converge.Command(), render.Command(), versionCommand())

	// development mode is only available as a command line flag to avoid accidentally enabling it
	rootCmd.PersistentFlags().BoolVar(&dev.Enabled, "development", false, "turns on development mode")
	_ = rootCmd.PersistentFlags().MarkHidden("development")
	log.BindFlags(rootCmd.PersistentFlags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := about.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\nbuild_hash: %s\nbuild_date: %s\n", info.Version, info.Hash, info.Date)
		},
	}
}

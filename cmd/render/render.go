// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package render

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/helixstack/helixctl/pkg/bootstrap/desired"
	"github.com/helixstack/helixctl/pkg/config"
)

const resolveFlag = "resolve"

// Command returns the render command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the desired resources as YAML without touching any cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags())
			if err != nil {
				return err
			}
			spec, err := desired.SpecFromConfig(cfg)
			if err != nil {
				return err
			}
			app, err := desired.Build(spec)
			if err != nil {
				return err
			}

			paths, err := cmd.Flags().GetStringSlice(resolveFlag)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return desired.Render(cmd.OutOrStdout(), app.Set)
			}
			for _, path := range paths {
				dest, ok := app.Routes.Table.Resolve(path)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s -> no route\n", path)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", path, dest)
			}
			return nil
		},
	}
	config.BindFlags(cmd.Flags())
	cmd.Flags().StringSlice(resolveFlag, nil, "Print the destination of each request path instead of the resources")
	return cmd
}

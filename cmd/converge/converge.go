// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package converge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/helixstack/helixctl/pkg/bootstrap/access"
	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
	"github.com/helixstack/helixctl/pkg/bootstrap/env"
	"github.com/helixstack/helixctl/pkg/bootstrap/pipeline"
	"github.com/helixstack/helixctl/pkg/config"
	"github.com/helixstack/helixctl/pkg/utils/exec"
	"github.com/helixstack/helixctl/pkg/utils/k8s"
	ulog "github.com/helixstack/helixctl/pkg/utils/log"
	"github.com/helixstack/helixctl/pkg/utils/metrics"
)

var log = ulog.Log.WithName("converge")

// Command returns the converge command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converge",
		Short: "Bring the cluster, the mesh and the application to the desired state",
		Long: `converge detects and installs the required tools, makes sure a cluster is reachable,
installs the service mesh, then applies the application and its routes. Every run starts from
what it observes: re-running it after a failure or on a converged environment is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// every line of a run carries the same id, runs are easy to tell apart in a shared log file
	ctx = ulog.IntoContext(ctx, log.WithValues("run.id", uuid.NewString()))

	cfg, err := config.Load(viper.New(), cmd.Flags())
	if err != nil {
		return err
	}
	metrics.RegisterClientMetrics()

	// drivers write the contexts of the clusters they create into the configured kubeconfig
	runner := exec.HostRunner{BinDir: cfg.BinDir, Env: []string{"KUBECONFIG=" + cfg.Kubeconfig}}
	converger, err := pipeline.NewConverger(cfg, runner, pipeline.DefaultDependencies())
	if err != nil {
		return err
	}
	e := env.New(cfg.BinDir, k8s.KubeconfigRef{Path: cfg.Kubeconfig, Context: cfg.Context}, runner)

	ulog.FromContext(ctx).Info("Converging", "namespace", cfg.Namespace, "kubeconfig", cfg.Kubeconfig, "context", cfg.Context,
		"mesh_profile", cfg.MeshProfile, "drivers", cfg.ClusterDrivers)
	results, runErr := converger.Converge(ctx, e)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			ulog.FromContext(ctx).Error(err, "Failed to write metrics", "path", cfg.MetricsFile)
		}
	}

	if runErr != nil {
		writeFailure(cmd.ErrOrStderr(), results, runErr)
		return errors.New("convergence failed")
	}
	return access.WriteReport(cmd.OutOrStdout(), results, converger.Endpoints)
}

// writeFailure prints the last completed stage and the failing one, one line each.
func writeFailure(w io.Writer, results convergence.Results, err error) {
	fmt.Fprintln(w, access.StageTable(results))
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		fmt.Fprintf(w, "failed: %v\n", err)
		return
	}
	last := string(stageErr.LastCompleted)
	if last == "" {
		last = "none"
	}
	fmt.Fprintf(w, "last completed stage: %s\n", last)
	fmt.Fprintf(w, "failed stage: %s: %v\n", stageErr.Stage, stageErr.Err)
}

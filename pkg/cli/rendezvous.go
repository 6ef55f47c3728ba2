/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/jitbuild/pkg/comm"
	"github.com/NVIDIA/jitbuild/pkg/defaults"
	"github.com/NVIDIA/jitbuild/pkg/server"
)

func rendezvousCmd() *cli.Command {
	return &cli.Command{
		Name:                  "rendezvous",
		EnableShellCompletion: true,
		Usage:                 "Run a standalone rendezvous server for a job",
		Description: `Serve the collective operations (barrier, all-gather, split, abort) used by
"jitbuild build" processes to agree on builders and wait for the cache.

The server also exposes /health, /ready and Prometheus /metrics. When a job
id is set, requests carrying another job id are rejected.

# Examples

Serve on the default port and print a fresh job id:
  jitbuild rendezvous --generate-job-id`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen address",
				Value:   defaults.RendezvousListen,
			},
			&cli.StringFlag{
				Name:    "job-id",
				Usage:   "Accept only requests of this job (default: any)",
				Sources: cli.EnvVars(defaults.EnvJobID),
			},
			&cli.BoolFlag{
				Name:  "generate-job-id",
				Usage: "Generate a random job id when none is set",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := server.NewConfig()
			cfg.Listen = cmd.String("listen")
			cfg.Version = version
			cfg.JobID = cmd.String("job-id")
			if cfg.JobID == "" && cmd.Bool("generate-job-id") {
				cfg.JobID = uuid.NewString()
				slog.Info("generated job id", "jobId", cfg.JobID, "env", defaults.EnvJobID)
			}

			return server.New(cfg, comm.NewHub()).Start(ctx)
		},
	}
}

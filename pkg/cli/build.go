/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/jitbuild/pkg/build"
	"github.com/NVIDIA/jitbuild/pkg/comm"
	"github.com/NVIDIA/jitbuild/pkg/config"
	"github.com/NVIDIA/jitbuild/pkg/coordinator"
	"github.com/NVIDIA/jitbuild/pkg/defaults"
	"github.com/NVIDIA/jitbuild/pkg/header"
	"github.com/NVIDIA/jitbuild/pkg/manifest"
	"github.com/NVIDIA/jitbuild/pkg/platform"
	"github.com/NVIDIA/jitbuild/pkg/server"
)

func buildCmd() *cli.Command {
	flags := append(configFlags(),
		&cli.StringFlag{
			Name:     "manifest",
			Aliases:  []string{"m"},
			Required: true,
			Usage:    "Path to the kernel manifest (YAML or JSON)",
		},
		&cli.StringFlag{
			Name:  "rendezvous",
			Usage: "Address of the rendezvous server shared by all processes of the job",
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "Host the rendezvous server on rank 0 at this address",
		},
		&cli.StringFlag{
			Name:  "job-id",
			Usage: "Job identifier checked by the rendezvous server",
		},
		&cli.StringFlag{
			Name:    "hostname",
			Usage:   "Node identity used to group processes (default: os hostname)",
			Sources: cli.EnvVars(defaults.EnvHostname),
		},
		outputFlag,
		formatFlag,
	)

	return &cli.Command{
		Name:                  "build",
		EnableShellCompletion: true,
		Usage:                 "Build the kernels of a manifest as one process of a job",
		Description: `Run the coordinated build for the calling process.

Start one instance per process of the job, typically through the job launcher.
Rank and size are read from JITBUILD_RANK/JITBUILD_SIZE, Open MPI, PMI or
Slurm variables. Jobs of more than one process need a rendezvous server: run
"jitbuild rendezvous" separately, or let rank 0 host it with --listen.

The build report of rank 0 is written to --output.

# Examples

Single process:
  jitbuild build --manifest kernels.yaml --cache-dir /scratch/cache

Under Slurm, one builder per node, rank 0 hosting the rendezvous:
  srun jitbuild build -m kernels.yaml --node-local \
    --listen :7077 --rendezvous login01:7077`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			identity, err := comm.IdentityFromEnv(os.LookupEnv)
			if err != nil {
				return err
			}

			report, err := runBuild(ctx, buildRun{
				cfg:      cfg,
				identity: identity,
				manifest: cmd.String("manifest"),
				hostname: cmd.String("hostname"),
			})
			if err != nil {
				return err
			}

			if cfg.BuildOnly {
				slog.Info("build-only mode, exiting", "kernels", report.Kernels)
			}
			if report.Rank != 0 {
				return nil
			}
			if err := writeOutput(ctx, format, cmd.String("output"), header.KindBuildReport, report); err != nil {
				return fmt.Errorf("failed to serialize build report: %w", err)
			}
			return nil
		},
	}
}

type buildRun struct {
	cfg      *config.Config
	identity comm.Identity
	manifest string
	hostname string
	compiler build.Compiler
}

// runBuild runs one process of a job. Rank 0 hosts the rendezvous server
// for the duration of the build when a listen address is configured.
func runBuild(ctx context.Context, r buildRun) (*coordinator.Report, error) {
	address := r.cfg.Rendezvous.Address

	var g errgroup.Group
	if r.cfg.Rendezvous.Listen != "" && r.identity.Rank == 0 {
		scfg := server.NewConfig()
		scfg.Listen = r.cfg.Rendezvous.Listen
		scfg.JobID = r.cfg.Rendezvous.JobID
		scfg.Version = version
		srv := server.New(scfg, comm.NewHub())

		addr, err := srv.Listen()
		if err != nil {
			return nil, err
		}
		if address == "" {
			address = loopbackAddress(addr)
		}

		srvCtx, stopServer := context.WithCancel(ctx)
		g.Go(func() error { return srv.Start(srvCtx) })
		defer func() {
			stopServer()
			if err := g.Wait(); err != nil {
				slog.Warn("rendezvous server stopped with error", "error", err)
			}
		}()
	}

	world, err := comm.Dial(r.identity, address, r.cfg.Rendezvous.JobID)
	if err != nil {
		return nil, err
	}

	opts := []platform.Option{platform.WithHostname(r.hostname)}
	if r.compiler != nil {
		opts = append(opts, platform.WithCompiler(r.compiler))
	}
	return buildKernels(ctx, r.cfg, world, r.manifest, opts...)
}

// buildKernels constructs the platform, registers the manifest and runs the
// build. Failures before the build starts abort the job as well.
func buildKernels(ctx context.Context, cfg *config.Config, world comm.Communicator,
	manifestPath string, opts ...platform.Option) (*coordinator.Report, error) {
	p, err := platform.New(ctx, cfg, world, opts...)
	if err != nil {
		abortJob(ctx, world, err)
		return nil, err
	}
	defer func() {
		if err := p.Close(); err != nil {
			p.Logger().Warn("failed to close platform", "error", err)
		}
	}()

	m, err := manifest.Load(manifestPath)
	if err != nil {
		abortJob(ctx, world, err)
		return nil, err
	}
	n, err := m.Register(p, p.KernelInfo(), cfg.InstallDir)
	if err != nil {
		abortJob(ctx, world, err)
		return nil, err
	}
	p.Logger().Debug("registered kernels", "manifest", manifestPath, "count", n)

	return p.Compile(ctx)
}

// loopbackAddress returns an address for connecting to a listener bound to
// addr from the same host.
func loopbackAddress(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

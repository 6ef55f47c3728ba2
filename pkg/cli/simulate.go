/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/jitbuild/pkg/build"
	"github.com/NVIDIA/jitbuild/pkg/comm"
	"github.com/NVIDIA/jitbuild/pkg/config"
	"github.com/NVIDIA/jitbuild/pkg/coordinator"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/header"
	"github.com/NVIDIA/jitbuild/pkg/platform"
)

// SimulationResult is the output of the simulate command.
type SimulationResult struct {
	Ranks    int                   `json:"ranks" yaml:"ranks"`
	Nodes    int                   `json:"nodes" yaml:"nodes"`
	Scope    string                `json:"scope" yaml:"scope"`
	Builders []int                 `json:"builders" yaml:"builders"`
	CacheDir string                `json:"cacheDir" yaml:"cacheDir"`
	Reports  []*coordinator.Report `json:"reports" yaml:"reports"`
}

func simulateCmd() *cli.Command {
	flags := append(configFlags(),
		&cli.StringFlag{
			Name:     "manifest",
			Aliases:  []string{"m"},
			Required: true,
			Usage:    "Path to the kernel manifest (YAML or JSON)",
		},
		&cli.IntFlag{
			Name:    "ranks",
			Aliases: []string{"n"},
			Usage:   "Number of simulated processes",
			Value:   4,
		},
		&cli.IntFlag{
			Name:  "nodes",
			Usage: "Number of simulated hosts; ranks are assigned in contiguous blocks",
			Value: 1,
		},
		outputFlag,
		formatFlag,
	)

	return &cli.Command{
		Name:                  "simulate",
		EnableShellCompletion: true,
		Usage:                 "Run a multi-process build in one process",
		Description: `Run --ranks participants as goroutines over an in-process transport,
spread across --nodes simulated hosts that share one cache directory.

Useful to check a manifest and the builder election before submitting a job.

# Examples

Four processes on two nodes, one builder per node:
  jitbuild simulate -m kernels.yaml --ranks 4 --nodes 2 --node-local`,
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

			result, err := runSimulation(ctx, simulation{
				cfg:      cfg,
				ranks:    int(cmd.Int("ranks")),
				nodes:    int(cmd.Int("nodes")),
				manifest: cmd.String("manifest"),
			})
			if err != nil {
				return err
			}

			slog.Info("simulation complete",
				"ranks", result.Ranks,
				"nodes", result.Nodes,
				"builders", len(result.Builders))
			if err := writeOutput(ctx, format, cmd.String("output"), header.KindSimulationResult, result); err != nil {
				return fmt.Errorf("failed to serialize simulation result: %w", err)
			}
			return nil
		},
	}
}

type simulation struct {
	cfg      *config.Config
	ranks    int
	nodes    int
	manifest string
	compiler build.Compiler
}

// simulatedHost spreads ranks over exactly nodes hosts, keeping the ranks of
// a host contiguous.
func simulatedHost(rank, ranks, nodes int) string {
	return fmt.Sprintf("node-%d", rank*nodes/ranks)
}

// runSimulation runs every rank to completion. On failure it returns the
// error of the rank that caused the abort rather than a secondary one.
func runSimulation(ctx context.Context, s simulation) (*SimulationResult, error) {
	if s.ranks < 1 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "at least one rank is required")
	}
	if s.nodes < 1 || s.nodes > s.ranks {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeInvalidRequest,
			"node count must be between 1 and the number of ranks",
			map[string]any{"ranks": s.ranks, "nodes": s.nodes})
	}

	hub := comm.NewHub()
	reports := make([]*coordinator.Report, s.ranks)
	errs := make([]error, s.ranks)

	var g errgroup.Group
	for rank := range s.ranks {
		g.Go(func() error {
			world, err := hub.Connect(rank, s.ranks)
			if err != nil {
				errs[rank] = err
				return err
			}
			opts := []platform.Option{platform.WithHostname(simulatedHost(rank, s.ranks, s.nodes))}
			if s.compiler != nil {
				opts = append(opts, platform.WithCompiler(s.compiler))
			}
			reports[rank], errs[rank] = buildKernels(ctx, s.cfg, world, s.manifest, opts...)
			return errs[rank]
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range errs {
			if e != nil && !apperrors.HasCode(e, apperrors.ErrCodeAborted) {
				return nil, e
			}
		}
		return nil, err
	}

	result := &SimulationResult{
		Ranks:    s.ranks,
		Nodes:    s.nodes,
		Scope:    coordinator.ScopeFor(s.cfg.BuildNodeLocal).String(),
		CacheDir: s.cfg.CacheDir,
		Reports:  reports,
	}
	for _, r := range reports {
		if r.Role == coordinator.RoleBuilder {
			result.Builders = append(result.Builders, r.Rank)
		}
	}
	return result, nil
}

/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/jitbuild/pkg/build"
	"github.com/NVIDIA/jitbuild/pkg/coordinator"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/header"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/oci"
)

// CacheReport is the output of "cache status".
type CacheReport struct {
	coordinator.CacheStatus `json:",inline" yaml:",inline"`
	Artifacts               []Artifact `json:"artifacts" yaml:"artifacts"`
}

// Artifact summarizes one compiled kernel in the cache.
type Artifact struct {
	Path    string            `json:"path" yaml:"path"`
	Name    string            `json:"name" yaml:"name"`
	Symbol  string            `json:"symbol" yaml:"symbol"`
	Kind    kernel.SourceKind `json:"kind" yaml:"kind"`
	Mode    string            `json:"mode" yaml:"mode"`
	Host    string            `json:"host,omitempty" yaml:"host,omitempty"`
	BuiltAt time.Time         `json:"builtAt" yaml:"builtAt"`
}

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:                  "cache",
		EnableShellCompletion: true,
		Usage:                 "Inspect or publish a kernel cache directory",
		Commands: []*cli.Command{
			cacheStatusCmd(),
			cachePushCmd(),
		},
	}
}

func cacheDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "cache-dir",
		Usage: "Kernel cache directory (default: from config)",
	}
}

func cacheStatusCmd() *cli.Command {
	return &cli.Command{
		Name:                  "status",
		EnableShellCompletion: true,
		Usage:                 "Report completion and staleness of a cache directory",
		Description: `Report whether a build finished in the cache directory, when, and which
files changed after it finished. Every readable artifact is listed.`,
		Flags: []cli.Flag{
			cacheDirFlag(),
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			report, err := cacheStatus(cfg.CacheDir)
			if err != nil {
				return err
			}
			if err := writeOutput(ctx, format, cmd.String("output"), header.KindCacheStatus, report); err != nil {
				return fmt.Errorf("failed to serialize cache status: %w", err)
			}
			return nil
		},
	}
}

func cacheStatus(cacheDir string) (*CacheReport, error) {
	st, err := coordinator.Status(cacheDir)
	if err != nil {
		return nil, err
	}
	report := &CacheReport{CacheStatus: *st, Artifacts: []Artifact{}}

	entries, err := build.Inspect(cacheDir)
	switch {
	case os.IsNotExist(err):
		return report, nil
	case err != nil:
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to read cache directory", err)
	}
	for path, meta := range entries {
		report.Artifacts = append(report.Artifacts, Artifact{
			Path:    path,
			Name:    meta.Name,
			Symbol:  meta.Symbol,
			Kind:    meta.Kind,
			Mode:    meta.Mode,
			Host:    meta.Host,
			BuiltAt: meta.BuiltAt,
		})
	}
	sort.Slice(report.Artifacts, func(i, j int) bool {
		return report.Artifacts[i].Path < report.Artifacts[j].Path
	})
	return report, nil
}

func cachePushCmd() *cli.Command {
	return &cli.Command{
		Name:                  "push",
		EnableShellCompletion: true,
		Usage:                 "Publish a finished cache directory as an OCI artifact",
		Description: `Package the cache directory as an OCI artifact and push it to a registry,
or write it to a local OCI layout directory. Caches without a completion
marker are refused.

# Examples

Push to a registry:
  jitbuild cache push --cache-dir /scratch/cache --target oci://ghcr.io/acme/kernels:v1

Write an OCI layout:
  jitbuild cache push --cache-dir /scratch/cache --target ./kernels-layout --tag v1`,
		Flags: []cli.Flag{
			cacheDirFlag(),
			&cli.StringFlag{
				Name:     "target",
				Required: true,
				Usage:    "oci://registry/repository[:tag] or a local layout directory",
			},
			&cli.StringFlag{
				Name:  "tag",
				Usage: "Tag used when the target carries none",
				Value: "latest",
			},
			&cli.BoolFlag{
				Name:  "plain-http",
				Usage: "Use HTTP instead of HTTPS for the registry",
			},
			&cli.BoolFlag{
				Name:  "insecure-tls",
				Usage: "Skip TLS certificate verification",
			},
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			target, err := oci.ParseOutputTarget(cmd.String("target"))
			if err != nil {
				return err
			}

			res, err := oci.Push(ctx, oci.PushOptions{
				CacheDir:    cfg.CacheDir,
				Target:      target,
				Tag:         cmd.String("tag"),
				Version:     version,
				PlainHTTP:   cmd.Bool("plain-http"),
				InsecureTLS: cmd.Bool("insecure-tls"),
			})
			if err != nil {
				return err
			}

			slog.Info("cache published", "reference", res.Reference, "digest", res.Digest)
			if err := writeOutput(ctx, format, cmd.String("output"), header.KindPushResult, res); err != nil {
				return fmt.Errorf("failed to serialize push result: %w", err)
			}
			return nil
		},
	}
}

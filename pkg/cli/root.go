/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/jitbuild/pkg/comm"
	"github.com/NVIDIA/jitbuild/pkg/config"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/header"
	"github.com/NVIDIA/jitbuild/pkg/logging"
	"github.com/NVIDIA/jitbuild/pkg/serializer"
)

const (
	name           = "jitbuild"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file path (default: stdout)",
	}
	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Usage:   fmt.Sprintf("Output format (%s)", strings.Join(serializer.SupportedFormats(), ", ")),
		Value:   string(serializer.FormatYAML),
	}
)

// Execute runs the root command with os.Args. SIGINT and SIGTERM cancel the
// command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "Coordinated just-in-time kernel builds for multi-process jobs",
		Version:               fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		EnableShellCompletion: true,
		ShellComplete:         commandLister,
		Description: `jitbuild compiles the compute kernels of a parallel job before it runs.

Per scope (the whole job, or each node) exactly one process compiles every
kernel into the shared cache directory while the others wait, then load the
cached binaries. A failure on any process aborts the whole job.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or JSON configuration file",
				Sources: cli.EnvVars("JITBUILD_CONFIG"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			buildCmd(),
			simulateCmd(),
			rendezvousCmd(),
			cacheCmd(),
		},
	}
}

// commandLister prints the visible subcommands of cmd for shell completion.
func commandLister(_ context.Context, cmd *cli.Command) {
	if cmd == nil {
		return
	}
	for _, c := range cmd.Commands {
		if c.Hidden {
			continue
		}
		fmt.Fprintln(os.Stdout, c.Name)
	}
}

// configFlags returns the flags that override configuration fields.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "Thread model: Serial, CUDA, HIP or OpenCL",
		},
		&cli.StringFlag{
			Name:  "device-number",
			Usage: "Device id, or LOCAL-RANK to use the node-local rank",
		},
		&cli.StringFlag{
			Name:  "cache-dir",
			Usage: "Shared kernel cache directory",
		},
		&cli.StringFlag{
			Name:  "install-dir",
			Usage: "Root for relative kernel source paths (default: manifest directory)",
		},
		&cli.StringFlag{
			Name:  "plugin",
			Usage: "Path to a Go plugin exporting user hooks",
		},
		&cli.BoolFlag{
			Name:  "build-only",
			Usage: "Compile verbosely and exit once the cache is complete",
		},
		&cli.BoolFlag{
			Name:  "node-local",
			Usage: "Elect one builder per node instead of one per job",
		},
	}
}

// loadConfig layers the config file, JITBUILD_* variables and flags set on
// cmd, in that order.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	strFlags := map[string]*string{
		"backend":       &cfg.Backend,
		"device-number": &cfg.DeviceNumber,
		"cache-dir":     &cfg.CacheDir,
		"install-dir":   &cfg.InstallDir,
		"plugin":        &cfg.Plugin,
		"rendezvous":    &cfg.Rendezvous.Address,
		"listen":        &cfg.Rendezvous.Listen,
		"job-id":        &cfg.Rendezvous.JobID,
	}
	for flag, dst := range strFlags {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}
	if cmd.IsSet("build-only") {
		cfg.BuildOnly = cmd.Bool("build-only")
	}
	if cmd.IsSet("node-local") {
		cfg.BuildNodeLocal = cmd.Bool("node-local")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	format := serializer.Format(cmd.String("format"))
	if format.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q", format)
	}
	return format, nil
}

// writeOutput serializes v as a document of the given kind.
func writeOutput(ctx context.Context, format serializer.Format, output string, kind header.Kind, v any) error {
	ser := serializer.NewFileWriterOrStdout(format, output)
	defer func() {
		if err := ser.Close(); err != nil {
			slog.Warn("failed to close serializer", "error", err)
		}
	}()
	return ser.Serialize(ctx, header.NewDocument(kind, version, v))
}

// abortJob tells every participant of world to stop. Aborts received from
// another participant are not rebroadcast.
func abortJob(ctx context.Context, world comm.Communicator, cause error) {
	if world == nil || apperrors.HasCode(cause, apperrors.ErrCodeAborted) {
		return
	}
	if err := world.Abort(ctx, cause); err != nil {
		slog.Warn("failed to broadcast abort", "error", err)
	}
}

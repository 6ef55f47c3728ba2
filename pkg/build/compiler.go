// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/jitbuild/pkg/backend"
	"github.com/NVIDIA/jitbuild/pkg/defaults"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
)

// Unit is one invocation of a backend compiler.
type Unit struct {
	Kind kernel.SourceKind
	Mode backend.Mode
	// Source is the file handed to the compiler. For native kernels this is
	// the generated specialization, not the registered source.
	Source string
	// Entry is the unsuffixed entry name; Symbol the specialized one.
	Entry      string
	Symbol     string
	Properties kernel.Properties
	// OutputDir receives every file the compiler produces.
	OutputDir string
}

// Compiler builds a Unit and returns the path of the produced binary, which
// must be inside Unit.OutputDir.
type Compiler interface {
	Compile(ctx context.Context, u Unit) (string, error)
}

// ExecOptions configures ExecCompiler.
type ExecOptions struct {
	// Native is the system compiler used for native kernels.
	Native string
	// NativeFlags are passed before any property-derived flag.
	NativeFlags []string
	// Portable is the portable kernel compiler.
	Portable string
}

type runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecCompiler invokes external compilers through os/exec.
type ExecCompiler struct {
	device *backend.Device
	opts   ExecOptions
	run    runner
}

// NewExecCompiler returns a compiler for device, filling unset options from
// defaults.
func NewExecCompiler(device *backend.Device, opts ExecOptions) *ExecCompiler {
	if opts.Native == "" {
		opts.Native = defaults.NativeCompiler
	}
	if opts.Portable == "" {
		opts.Portable = defaults.PortableCompiler
	}
	return &ExecCompiler{
		device: device,
		opts:   opts,
		run:    runCommand,
	}
}

// Compile implements Compiler.
func (c *ExecCompiler) Compile(ctx context.Context, u Unit) (string, error) {
	var (
		name   string
		args   []string
		binary string
		err    error
	)
	switch u.Kind {
	case kernel.KindPortable:
		name, args, binary, err = c.portableCommand(u)
	default:
		name, args, binary = c.nativeCommand(u)
	}
	if err != nil {
		return "", err
	}

	slog.Debug("invoking compiler",
		"compiler", name,
		"args", strings.Join(args, " "),
		"symbol", u.Symbol,
	)

	out, err := c.run(ctx, u.OutputDir, name, args...)
	if err != nil {
		diag := strings.TrimSpace(string(out))
		return "", apperrors.WrapWithContext(apperrors.ErrCodeCompile,
			fmt.Sprintf("%s rejected %s:\n%s", filepath.Base(name), filepath.Base(u.Source), diag),
			err,
			map[string]any{
				"compiler":    name,
				"symbol":      u.Symbol,
				"diagnostics": diag,
			})
	}
	if _, statErr := os.Stat(binary); statErr != nil {
		return "", apperrors.WrapWithContext(apperrors.ErrCodeCompile,
			"compiler produced no binary", statErr,
			map[string]any{"compiler": name, "binary": binary})
	}
	return binary, nil
}

// Warmup runs the compiler once with --version. Builders call it before the
// first real compile so toolchain problems surface with a clear message.
func (c *ExecCompiler) Warmup(ctx context.Context) error {
	name := c.opts.Portable
	if c.device == nil || c.device.Mode.IsHost() {
		name = c.opts.Native
	}

	ctx, cancel := context.WithTimeout(ctx, defaults.CompilerVersionTimeout)
	defer cancel()

	out, err := c.run(ctx, "", name, "--version")
	if err != nil {
		return apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
			"compiler is not usable", err,
			map[string]any{"compiler": name, "output": strings.TrimSpace(string(out))})
	}
	slog.Debug("compiler available", "compiler", name, "version", firstLine(out))
	return nil
}

func (c *ExecCompiler) nativeCommand(u Unit) (string, []string, string) {
	name := c.opts.Native
	if override := u.Properties.Text("compiler"); override != "" {
		name = override
	}
	binary := filepath.Join(u.OutputDir, u.Symbol+".so")

	args := append([]string(nil), c.opts.NativeFlags...)
	args = append(args, strings.Fields(u.Properties.Text("compiler_flags"))...)
	args = append(args, "-shared", "-fPIC")
	for _, d := range u.Properties.Defines() {
		args = append(args, defineFlag(d))
	}
	for _, dir := range u.Properties.Strings("include_paths") {
		args = append(args, "-I"+dir)
	}
	for _, header := range u.Properties.Strings("includes") {
		args = append(args, "-include", header)
	}
	args = append(args, "-o", binary, u.Source)
	return name, args, binary
}

func (c *ExecCompiler) portableCommand(u Unit) (string, []string, string, error) {
	propsPath := filepath.Join(u.OutputDir, defaults.PropertiesFileName)
	data, err := json.MarshalIndent(u.Properties, "", "  ")
	if err != nil {
		return "", nil, "", apperrors.Wrap(apperrors.ErrCodeCompile, "failed to encode properties", err)
	}
	if err := os.WriteFile(propsPath, data, 0600); err != nil {
		return "", nil, "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write properties", err)
	}

	deviceConfig := fmt.Sprintf("{mode: '%s'}", u.Mode)
	if c.device != nil {
		deviceConfig = c.device.Config()
	}

	binary := filepath.Join(u.OutputDir, u.Symbol+".bin")
	args := []string{
		"build",
		"--device", deviceConfig,
		"--kernel", u.Entry,
		"--props", propsPath,
		"--output", binary,
		u.Source,
	}
	return c.opts.Portable, args, binary, nil
}

func defineFlag(d kernel.Property) string {
	var value string
	switch v := d.Value.(type) {
	case nil:
	case string:
		return "-D" + d.Key + "=" + v
	case bool:
		if v {
			value = "1"
		} else {
			value = "0"
		}
	case []string:
		value = strings.Join(v, ",")
	default:
		value = fmt.Sprint(v)
	}
	if value == "" {
		return "-D" + d.Key
	}
	return "-D" + d.Key + "=" + value
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line)
}

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

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NVIDIA/jitbuild/pkg/backend"
	"github.com/NVIDIA/jitbuild/pkg/build"
	"github.com/NVIDIA/jitbuild/pkg/defaults"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/serializer"
)

// CompilerConfig selects the external compilers.
type CompilerConfig struct {
	// Native compiles native kernels on the Serial backend.
	Native string `json:"native,omitempty" yaml:"native,omitempty"`
	// NativeFlags is a space separated flag list for the native compiler.
	NativeFlags string `json:"nativeFlags,omitempty" yaml:"nativeFlags,omitempty"`
	// Underlying replaces Native on accelerator backends, where the default
	// compiler is usually an MPI wrapper.
	Underlying string `json:"underlying,omitempty" yaml:"underlying,omitempty"`
	// Portable translates portable kernels.
	Portable string `json:"portable,omitempty" yaml:"portable,omitempty"`
}

// RendezvousConfig locates the rendezvous service of a multi-process job.
type RendezvousConfig struct {
	// Address of a running rendezvous server. Empty runs single-process.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Listen makes rank 0 host the server on this address. Rank 0 connects
	// to its own listener when Address is empty.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
	JobID  string `json:"jobId,omitempty" yaml:"jobId,omitempty"`
}

// Config is the complete process configuration.
type Config struct {
	Backend        string            `json:"backend" yaml:"backend"`
	DeviceNumber   string            `json:"deviceNumber" yaml:"deviceNumber"`
	PlatformNumber int               `json:"platformNumber,omitempty" yaml:"platformNumber,omitempty"`
	CacheDir       string            `json:"cacheDir" yaml:"cacheDir"`
	InstallDir     string            `json:"installDir,omitempty" yaml:"installDir,omitempty"`
	BuildOnly      bool              `json:"buildOnly,omitempty" yaml:"buildOnly,omitempty"`
	BuildNodeLocal bool              `json:"buildNodeLocal,omitempty" yaml:"buildNodeLocal,omitempty"`
	Compiler       CompilerConfig    `json:"compiler,omitempty" yaml:"compiler,omitempty"`
	KernelInfo     kernel.Properties `json:"kernelInfo,omitempty" yaml:"kernelInfo,omitempty"`
	Rendezvous     RendezvousConfig  `json:"rendezvous,omitempty" yaml:"rendezvous,omitempty"`
	Plugin         string            `json:"plugin,omitempty" yaml:"plugin,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend:      string(backend.ModeSerial),
		DeviceNumber: defaults.DeviceNumberLocalRank,
		CacheDir:     defaults.CacheDir,
	}
}

// Load returns the defaults overlaid with the file at path. An empty path
// returns the defaults. The format follows the extension; unknown fields
// are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	r, err := serializer.NewFileReader(serializer.FormatFromPath(path), path, serializer.WithStrict(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfiguration, "failed to open config file", err)
	}
	defer r.Close()

	if err := r.Deserialize(cfg); err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
			"failed to parse config file", err, map[string]any{"path": path})
	}
	return cfg, nil
}

// ApplyEnv overrides fields from JITBUILD_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := ParseBool(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeConfiguration, key, err)
		}
		*dst = b
		return nil
	}

	str(defaults.EnvBackend, &c.Backend)
	str(defaults.EnvDeviceNumber, &c.DeviceNumber)
	str(defaults.EnvCacheDir, &c.CacheDir)
	str(defaults.EnvInstallDir, &c.InstallDir)
	str(defaults.EnvNativeCompiler, &c.Compiler.Native)
	str(defaults.EnvNativeFlags, &c.Compiler.NativeFlags)
	str(defaults.EnvUnderlyingCompiler, &c.Compiler.Underlying)
	str(defaults.EnvPortableCompiler, &c.Compiler.Portable)
	str(defaults.EnvRendezvous, &c.Rendezvous.Address)
	str(defaults.EnvJobID, &c.Rendezvous.JobID)
	str(defaults.EnvPlugin, &c.Plugin)

	if err := boolean(defaults.EnvBuildOnly, &c.BuildOnly); err != nil {
		return err
	}
	return boolean(defaults.EnvBuildNodeLocal, &c.BuildNodeLocal)
}

// Validate checks the configuration. It is the only place an invalid
// backend selection is reported.
func (c *Config) Validate() error {
	if _, err := backend.ParseMode(c.Backend); err != nil {
		return err
	}
	if _, err := c.deviceNumber(); err != nil {
		return err
	}
	if c.PlatformNumber < 0 {
		return apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			"platform number cannot be negative", map[string]any{"platformNumber": c.PlatformNumber})
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return apperrors.New(apperrors.ErrCodeConfiguration, "cache directory is required")
	}
	return nil
}

// Mode returns the parsed backend.
func (c *Config) Mode() (backend.Mode, error) {
	return backend.ParseMode(c.Backend)
}

// DeviceID resolves the configured device number. localRank is used when
// the device is selected by node-local rank.
func (c *Config) DeviceID(localRank int) (int, error) {
	n, err := c.deviceNumber()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return localRank, nil
	}
	return n, nil
}

// deviceNumber returns -1 for LOCAL-RANK.
func (c *Config) deviceNumber() (int, error) {
	v := strings.TrimSpace(c.DeviceNumber)
	if v == "" || strings.EqualFold(v, defaults.DeviceNumberLocalRank) {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("invalid device number %q", c.DeviceNumber),
			map[string]any{"expected": defaults.DeviceNumberLocalRank + " or a non-negative integer"})
	}
	return n, nil
}

// CompilerOptions returns the compiler setup for mode. Accelerator
// backends use the underlying compiler for native code when one is set.
func (c *Config) CompilerOptions(mode backend.Mode) build.ExecOptions {
	native := c.Compiler.Native
	if mode != backend.ModeSerial && c.Compiler.Underlying != "" {
		native = c.Compiler.Underlying
	}
	return build.ExecOptions{
		Native:      native,
		NativeFlags: strings.Fields(c.Compiler.NativeFlags),
		Portable:    c.Compiler.Portable,
	}
}

// ParseBool accepts the usual spellings of a boolean setting, plus any
// integer, where non-zero is true.
func ParseBool(value string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n != 0, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", value)
}

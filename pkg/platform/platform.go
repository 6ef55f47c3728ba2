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

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/NVIDIA/jitbuild/pkg/backend"
	"github.com/NVIDIA/jitbuild/pkg/build"
	"github.com/NVIDIA/jitbuild/pkg/comm"
	"github.com/NVIDIA/jitbuild/pkg/config"
	"github.com/NVIDIA/jitbuild/pkg/coordinator"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/logging"
	"github.com/NVIDIA/jitbuild/pkg/registry"
	"github.com/NVIDIA/jitbuild/pkg/udf"
)

// Option customizes construction.
type Option func(*options)

type options struct {
	compiler build.Compiler
	hostname string
	hooks    *udf.Hooks
	logger   *slog.Logger
}

// WithCompiler replaces the external compilers.
func WithCompiler(c build.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithHostname sets the node identity used to group ranks. It defaults to
// os.Hostname.
func WithHostname(host string) Option {
	return func(o *options) {
		o.hostname = host
	}
}

// WithHooks installs a resolved hook table instead of loading the
// configured plugin.
func WithHooks(h *udf.Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithLogger sets the base logger. Rank attributes are added to it.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// warmer is implemented by compilers that can be probed before building.
type warmer interface {
	Warmup(ctx context.Context) error
}

// Platform is the per-process build context.
type Platform struct {
	cfg        *config.Config
	world      comm.Communicator
	local      comm.Communicator
	host       string
	device     *backend.Device
	adapter    *build.Adapter
	registry   *registry.Registry
	coord      *coordinator.Coordinator
	hooks      *udf.Hooks
	kernelInfo kernel.Properties
	logger     *slog.Logger

	mu        sync.Mutex
	closed    bool
	completed bool
}

// New builds the platform for the calling rank of world. It validates cfg,
// groups ranks by host to find the node-local rank, binds the device and
// resolves user hooks. It is collective over world: every rank must call it.
func New(ctx context.Context, cfg *config.Config, world comm.Communicator, opts ...Option) (*Platform, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "platform requires a configuration")
	}
	if world == nil {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "platform requires a world communicator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.hostname == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeConfiguration, "failed to determine host name", err)
		}
		o.hostname = host
	}

	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	local, err := world.Split(ctx, o.hostname)
	if err != nil {
		return nil, err
	}
	logger := logging.WithRank(o.logger, world.Rank(), local.Rank(), world.Size())

	deviceID, err := cfg.DeviceID(local.Rank())
	if err != nil {
		return nil, err
	}
	device, err := backend.NewDevice(mode, deviceID, cfg.PlatformNumber)
	if err != nil {
		return nil, err
	}

	compiler := o.compiler
	if compiler == nil {
		compiler = build.NewExecCompiler(device, cfg.CompilerOptions(mode))
	}
	adapter, err := build.NewAdapter(device, cfg.CacheDir, compiler,
		build.WithVerbose(cfg.BuildOnly),
		build.WithHost(o.hostname),
	)
	if err != nil {
		return nil, err
	}

	hooks := o.hooks
	if hooks == nil {
		hooks = udf.Noop()
		if cfg.Plugin != "" {
			if hooks, err = udf.Open(cfg.Plugin); err != nil {
				return nil, err
			}
		}
	}

	var prebuild []coordinator.Hook
	if w, ok := compiler.(warmer); ok {
		prebuild = append(prebuild, w.Warmup)
	}

	coord, err := coordinator.New(coordinator.Config{
		World:    world,
		Local:    local,
		Scope:    coordinator.ScopeFor(cfg.BuildNodeLocal),
		CacheDir: cfg.CacheDir,
		Prebuild: prebuild,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	kernelInfo := cfg.KernelInfo.Clone()
	hooks.LoadKernels(&kernelInfo)

	p := &Platform{
		cfg:        cfg,
		world:      world,
		local:      local,
		host:       o.hostname,
		device:     device,
		adapter:    adapter,
		registry:   registry.New(adapter),
		coord:      coord,
		hooks:      hooks,
		kernelInfo: kernelInfo,
		logger:     logger,
	}

	if err := hooks.Setup(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfiguration, "user setup hook failed", err)
	}

	logger.Debug("platform initialized",
		"host", o.hostname,
		"device", device.Config(),
		"cacheDir", cfg.CacheDir,
		"scope", coordinator.ScopeFor(cfg.BuildNodeLocal).String(),
		"role", string(coord.Role()),
	)
	return p, nil
}

// Config returns the configuration the platform was built from.
func (p *Platform) Config() *config.Config { return p.cfg }

// Device returns the bound device.
func (p *Platform) Device() *backend.Device { return p.device }

// World returns the job communicator.
func (p *Platform) World() comm.Communicator { return p.world }

// Local returns the communicator of the ranks sharing this host.
func (p *Platform) Local() comm.Communicator { return p.local }

// Host returns the node identity of this rank.
func (p *Platform) Host() string { return p.host }

// Role reports whether this rank builds or waits.
func (p *Platform) Role() coordinator.Role { return p.coord.Role() }

// Logger returns the rank-annotated logger.
func (p *Platform) Logger() *slog.Logger { return p.logger }

// KernelInfo returns a copy of the base kernel properties, including what
// the user hooks added.
func (p *Platform) KernelInfo() kernel.Properties {
	return p.kernelInfo.Clone()
}

// Add registers a kernel request.
func (p *Platform) Add(spec kernel.Spec, assertUnique bool) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.registry.Add(spec, assertUnique)
}

// Compile runs the build protocol over every registered request. It is
// collective over the world communicator.
func (p *Platform) Compile(ctx context.Context) (*coordinator.Report, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	report, err := p.coord.Run(ctx, p.registry)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.completed = true
	p.mu.Unlock()
	return report, nil
}

// Kernel looks up a compiled kernel by request name. Lookups fail until the
// build protocol has completed on every rank of the job.
func (p *Platform) Kernel(name string, checkValid bool) (*kernel.Compiled, error) {
	if !p.isCompleted() {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeLookup,
			fmt.Sprintf("kernel %s requested before the build completed", name),
			map[string]any{"request": name, "rank": p.world.Rank()})
	}
	return p.registry.Kernel(name, checkValid)
}

// Kernels returns every compiled handle in registration order, or nil while
// the build has not completed.
func (p *Platform) Kernels() []*kernel.Compiled {
	if !p.isCompleted() {
		return nil
	}
	return p.registry.Kernels()
}

// Processed reports whether the build protocol completed for the whole job.
func (p *Platform) Processed() bool {
	return p.isCompleted() && p.registry.Processed()
}

func (p *Platform) isCompleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Close invalidates every compiled handle. Later calls do nothing.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	for _, k := range p.registry.Kernels() {
		k.Invalidate()
	}
	p.logger.Debug("platform closed")
	return nil
}

func (p *Platform) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("platform of rank %d is closed", p.world.Rank()))
	}
	return nil
}

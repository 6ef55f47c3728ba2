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

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/NVIDIA/jitbuild/pkg/comm"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/logging"
)

// Scope selects how the job is partitioned into builders and waiters.
type Scope int

const (
	// ScopeGlobal elects a single builder for the whole job.
	ScopeGlobal Scope = iota
	// ScopeNode elects one builder per node.
	ScopeNode
)

// String implements fmt.Stringer.
func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeNode:
		return "node"
	default:
		return "Scope(" + strconv.Itoa(int(s)) + ")"
	}
}

// ScopeFor returns ScopeNode when nodeLocal is set.
func ScopeFor(nodeLocal bool) Scope {
	if nodeLocal {
		return ScopeNode
	}
	return ScopeGlobal
}

// Phase is a state of the build protocol.
type Phase string

const (
	PhaseIdle        Phase = "Idle"
	PhaseBuilderPass Phase = "BuilderPass"
	PhaseSyncBarrier Phase = "SyncBarrier"
	PhaseWaiterPass  Phase = "WaiterPass"
	PhaseDone        Phase = "Done"
)

// Role is the part a participant plays within its scope.
type Role string

const (
	RoleBuilder Role = "builder"
	RoleWaiter  Role = "waiter"
)

// Target is what the protocol compiles. *registry.Registry satisfies it.
type Target interface {
	Compile(ctx context.Context) error
	Kernels() []*kernel.Compiled
}

// Hook is a builder-only action run at the start of BuilderPass.
type Hook func(ctx context.Context) error

// Config describes one participant of the protocol.
type Config struct {
	// World spans every participant of the job.
	World comm.Communicator
	// Local spans the participants of this node. Required for ScopeNode.
	Local comm.Communicator
	Scope Scope
	// CacheDir receives the completion marker. Empty disables the marker.
	CacheDir string
	// Prebuild hooks run on builders before compiling.
	Prebuild []Hook
	// Logger defaults to slog.Default annotated with the caller's ranks.
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator runs the protocol once.
type Coordinator struct {
	world    comm.Communicator
	scoped   comm.Communicator
	scope    Scope
	cacheDir string
	prebuild []Hook
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	phase Phase
}

// New validates cfg and returns an idle Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.World == nil {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "world communicator is required")
	}

	c := &Coordinator{
		world:    cfg.World,
		scope:    cfg.Scope,
		cacheDir: cfg.CacheDir,
		prebuild: cfg.Prebuild,
		logger:   cfg.Logger,
		now:      cfg.Now,
		phase:    PhaseIdle,
	}
	switch cfg.Scope {
	case ScopeGlobal:
		c.scoped = cfg.World
	case ScopeNode:
		if cfg.Local == nil {
			return nil, apperrors.New(apperrors.ErrCodeConfiguration,
				"node scope requires a node-local communicator")
		}
		c.scoped = cfg.Local
	default:
		return nil, apperrors.New(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("unknown build scope %s", cfg.Scope))
	}
	if c.logger == nil {
		localRank := c.world.Rank()
		if cfg.Local != nil {
			localRank = cfg.Local.Rank()
		}
		c.logger = logging.WithRank(slog.Default(), c.world.Rank(), localRank, c.world.Size())
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Role reports whether this participant builds or waits.
func (c *Coordinator) Role() Role {
	if c.scoped.Rank() == 0 {
		return RoleBuilder
	}
	return RoleWaiter
}

// Phase returns the current protocol phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Run executes the protocol against target. It may be called once; later
// calls fail with an internal error. Any compile failure aborts the world
// communicator before it is returned.
func (c *Coordinator) Run(ctx context.Context, target Target) (*Report, error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		phase := c.phase
		c.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("build protocol already ran (phase %s)", phase))
	}
	c.mu.Unlock()

	role := c.Role()
	report := &Report{
		Role:      role,
		Scope:     c.scope.String(),
		Rank:      c.world.Rank(),
		Size:      c.world.Size(),
		ScopeRank: c.scoped.Rank(),
		ScopeSize: c.scoped.Size(),
	}
	start := c.now()
	if c.world.Rank() == 0 {
		c.logger.Info("loading kernels ...", "scope", c.scope.String())
	}

	err := c.run(ctx, target, role, report)
	report.Total = c.now().Sub(start)
	if err != nil {
		runsTotal.WithLabelValues(string(role), "error").Inc()
		return report, err
	}

	for _, k := range target.Kernels() {
		report.Kernels++
		if k.Cached {
			report.CacheHits++
		}
	}
	runsTotal.WithLabelValues(string(role), "success").Inc()
	if c.world.Rank() == 0 {
		c.logger.Info(fmt.Sprintf("loading kernels ... done (%gs)", report.Total.Seconds()),
			"kernels", report.Kernels, "cacheHits", report.CacheHits)
	}
	return report, nil
}

func (c *Coordinator) run(ctx context.Context, target Target, role Role, report *Report) error {
	err := c.step(ctx, report, PhaseBuilderPass, func(ctx context.Context) error {
		if role != RoleBuilder {
			return nil
		}
		for i, hook := range c.prebuild {
			if err := hook(ctx); err != nil {
				return apperrors.Wrap(codeOr(err, apperrors.ErrCodeCompile),
					fmt.Sprintf("prebuild hook %d failed", i), err)
			}
		}
		return target.Compile(ctx)
	})
	if err != nil {
		return c.abort(ctx, err)
	}

	if err := c.step(ctx, report, PhaseSyncBarrier, c.scoped.Barrier); err != nil {
		return c.abort(ctx, err)
	}

	err = c.step(ctx, report, PhaseWaiterPass, func(ctx context.Context) error {
		if role != RoleWaiter {
			return nil
		}
		return target.Compile(ctx)
	})
	if err != nil {
		return c.abort(ctx, err)
	}

	if err := c.step(ctx, report, PhaseDone, c.world.Barrier); err != nil {
		return c.abort(ctx, err)
	}

	if c.world.Rank() == 0 && c.cacheDir != "" {
		path, err := WriteMarker(c.cacheDir, c.now())
		if err != nil {
			return err
		}
		report.Marker = path
	}
	return nil
}

// step enters phase, runs fn and records its duration.
func (c *Coordinator) step(ctx context.Context, report *Report, phase Phase, fn func(context.Context) error) error {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()

	c.logger.Debug("entering build phase", "phase", string(phase))
	start := c.now()
	err := fn(ctx)
	d := c.now().Sub(start)

	phaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
	report.Phases = append(report.Phases, PhaseTiming{Phase: phase, Duration: d})
	return err
}

// abort broadcasts err to every participant unless err already is the
// consequence of another participant's abort.
func (c *Coordinator) abort(ctx context.Context, err error) error {
	if apperrors.HasCode(err, apperrors.ErrCodeAborted) {
		return err
	}
	c.logger.Error("kernel build failed, aborting job", "error", err)
	if aerr := c.world.Abort(ctx, err); aerr != nil {
		c.logger.Warn("failed to broadcast abort", "error", aerr)
	}
	return err
}

func codeOr(err error, fallback apperrors.ErrorCode) apperrors.ErrorCode {
	if code := apperrors.CodeOf(err); code != "" {
		return code
	}
	return fallback
}

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

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
)

// Builder produces a compiled handle for one request.
type Builder interface {
	Build(ctx context.Context, spec kernel.Spec) (*kernel.Compiled, error)
}

// State is the lifecycle stage of a Registry.
type State int

const (
	// StateOpen accepts registrations.
	StateOpen State = iota
	// StateCompiling is held for the duration of Compile.
	StateCompiling
	// StateCompiled serves lookups.
	StateCompiled
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateCompiling:
		return "Compiling"
	case StateCompiled:
		return "Compiled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Registry is the process-local store of kernel requests.
type Registry struct {
	builder Builder
	lazy    context.Context

	mu      sync.RWMutex
	state   State
	order   []string
	specs   map[string]kernel.Spec
	handles map[string]*kernel.Compiled
}

// Option configures a Registry.
type Option func(*Registry)

// WithLazyLookup lets Kernel build a registered request on demand while the
// registry is still Open. Builds run under ctx. Every such lookup is logged
// as a warning; it exists for tests and tools that inspect single kernels.
func WithLazyLookup(ctx context.Context) Option {
	return func(r *Registry) {
		if ctx == nil {
			ctx = context.Background()
		}
		r.lazy = ctx
	}
}

// New returns an empty Open registry that compiles through builder.
func New(builder Builder, opts ...Option) *Registry {
	r := &Registry{
		builder: builder,
		specs:   make(map[string]kernel.Spec),
		handles: make(map[string]*kernel.Compiled),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers spec under spec.RequestName. A second registration of the
// same name is ignored unless assertUnique is set and the definitions
// differ, which is a configuration error.
func (r *Registry) Add(spec kernel.Spec, assertUnique bool) error {
	if err := spec.Validate(); err != nil {
		registryRequestsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		registryRequestsTotal.WithLabelValues("rejected").Inc()
		return apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("cannot register %s: registry is %s", spec.RequestName, r.state),
			map[string]any{"request": spec.RequestName})
	}

	existing, ok := r.specs[spec.RequestName]
	if !ok {
		r.specs[spec.RequestName] = spec.Clone()
		r.order = append(r.order, spec.RequestName)
		registryRequestsTotal.WithLabelValues("added").Inc()
		return nil
	}

	diff := existing.Diff(spec)
	if assertUnique && len(diff) > 0 {
		registryRequestsTotal.WithLabelValues("conflict").Inc()
		return apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("conflicting definitions for kernel %s (%s differ)\nexisting:\n%srequested:\n%s",
				spec.RequestName, strings.Join(diff, ", "), existing, spec),
			map[string]any{"request": spec.RequestName, "fields": diff})
	}

	if len(diff) > 0 {
		slog.Debug("ignoring differing duplicate registration",
			"request", spec.RequestName,
			"fields", diff,
		)
	}
	registryRequestsTotal.WithLabelValues("duplicate").Inc()
	return nil
}

// Compile builds every registered request in insertion order. Any failure
// aborts the pass: no handle is kept and the registry returns to Open. A
// registry that is already Compiled is left untouched.
func (r *Registry) Compile(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateCompiled:
		r.mu.Unlock()
		return nil
	case StateCompiling:
		r.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeInternal, "registry compile already in progress")
	}
	r.state = StateCompiling
	order := append([]string(nil), r.order...)
	specs := make([]kernel.Spec, len(order))
	for i, name := range order {
		specs[i] = r.specs[name].Clone()
	}
	r.mu.Unlock()

	built := make(map[string]*kernel.Compiled, len(specs))
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return r.fail(apperrors.Wrap(apperrors.ErrCodeAborted, "kernel compilation cancelled", err))
		}

		k, err := r.builder.Build(ctx, spec)
		if err != nil {
			code := apperrors.CodeOf(err)
			if code == "" {
				code = apperrors.ErrCodeCompile
			}
			return r.fail(apperrors.WrapWithContext(code,
				fmt.Sprintf("kernel %d of %d (%s) failed to build", i+1, len(specs), spec.RequestName),
				err,
				map[string]any{
					"request":  spec.RequestName,
					"position": i,
					"source":   spec.SourceFile,
				}))
		}
		built[spec.RequestName] = k
	}

	r.mu.Lock()
	r.handles = built
	r.state = StateCompiled
	r.mu.Unlock()

	registryCompilesTotal.WithLabelValues("success").Inc()
	return nil
}

func (r *Registry) fail(err error) error {
	r.mu.Lock()
	r.handles = make(map[string]*kernel.Compiled)
	r.state = StateOpen
	r.mu.Unlock()

	registryCompilesTotal.WithLabelValues("error").Inc()
	return err
}

// Kernel returns the compiled handle registered as name. It is a lookup
// error to call it before Compile completed or for an unknown name. With
// checkValid an invalidated handle is reported as an invalid handle error.
func (r *Registry) Kernel(name string, checkValid bool) (*kernel.Compiled, error) {
	r.mu.RLock()
	state := r.state
	k, ok := r.handles[name]
	spec, registered := r.specs[name]
	r.mu.RUnlock()

	if state != StateCompiled && !ok {
		if r.lazy == nil || state != StateOpen || !registered {
			return nil, apperrors.NewWithContext(apperrors.ErrCodeLookup,
				fmt.Sprintf("kernel %s requested before compile completed", name),
				map[string]any{"request": name, "state": state.String()})
		}
		var err error
		if k, err = r.buildLazily(spec); err != nil {
			return nil, err
		}
		ok = true
	}

	if !ok {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeLookup,
			fmt.Sprintf("kernel %s is not registered", name),
			map[string]any{"request": name})
	}
	if checkValid && !k.Valid() {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeInvalidHandle,
			fmt.Sprintf("kernel %s is not a valid compiled handle", name),
			map[string]any{"request": name})
	}
	return k, nil
}

func (r *Registry) buildLazily(spec kernel.Spec) (*kernel.Compiled, error) {
	slog.Warn("building kernel on lookup before compile", "request", spec.RequestName)

	if err := r.lazy.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeAborted, "kernel lookup cancelled", err)
	}
	k, err := r.builder.Build(r.lazy, spec)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.handles[spec.RequestName]; ok {
		return existing, nil
	}
	r.handles[spec.RequestName] = k
	return k, nil
}

// Processed reports whether Compile has completed.
func (r *Registry) Processed() bool {
	return r.State() == StateCompiled
}

// State returns the current lifecycle stage.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Len returns the number of distinct requests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Requests returns copies of the registered specs in insertion order.
func (r *Registry) Requests() []kernel.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kernel.Spec, len(r.order))
	for i, name := range r.order {
		out[i] = r.specs[name].Clone()
	}
	return out
}

// Kernels returns the compiled handles in insertion order. It is empty
// until Compile completed.
func (r *Registry) Kernels() []*kernel.Compiled {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != StateCompiled {
		return nil
	}
	out := make([]*kernel.Compiled, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.handles[name])
	}
	return out
}

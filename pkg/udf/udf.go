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

package udf

import (
	"context"
	"fmt"
	"plugin"

	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/version"
)

// HooksVersion is the oldest hook table version this build understands.
// Tables must share its major version.
const HooksVersion = "1.0"

// Exported symbol names.
const (
	SymbolVersion     = "HooksVersion"
	SymbolLoadKernels = "LoadKernels"
	SymbolSetup       = "Setup"
)

// Hooks is a resolved hook table. Every function is non-nil.
type Hooks struct {
	Version string
	Source  string

	// LoadKernels may extend the base kernel properties before any kernel
	// is registered.
	LoadKernels func(props *kernel.Properties)

	// Setup runs once after the platform is constructed.
	Setup func(ctx context.Context) error
}

// Noop returns a table whose hooks do nothing.
func Noop() *Hooks {
	return &Hooks{
		Version:     HooksVersion,
		LoadKernels: func(*kernel.Properties) {},
		Setup:       func(context.Context) error { return nil },
	}
}

// SymbolTable resolves exported symbols by name.
type SymbolTable interface {
	Lookup(name string) (any, error)
}

// Open loads the plugin at path and resolves its hook table.
func Open(path string) (*Hooks, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
			"failed to open hook library", err, map[string]any{"path": path})
	}
	h, err := Load(pluginTable{p})
	if err != nil {
		return nil, err
	}
	h.Source = path
	return h, nil
}

type pluginTable struct {
	p *plugin.Plugin
}

func (t pluginTable) Lookup(name string) (any, error) {
	return t.p.Lookup(name)
}

// Load resolves a hook table from table.
func Load(table SymbolTable) (*Hooks, error) {
	h := Noop()

	sym, err := table.Lookup(SymbolVersion)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("hook library does not export required symbol %s", SymbolVersion), err)
	}
	var declared string
	switch v := sym.(type) {
	case *string:
		declared = *v
	case string:
		declared = v
	default:
		return nil, wrongType(SymbolVersion, sym, "string")
	}
	if err := version.Check(declared, HooksVersion); err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
			"unsupported hook table version", err,
			map[string]any{"declared": declared, "supported": HooksVersion})
	}
	h.Version = declared

	if sym, err := table.Lookup(SymbolLoadKernels); err == nil {
		fn, ok := sym.(func(*kernel.Properties))
		if !ok {
			return nil, wrongType(SymbolLoadKernels, sym, "func(*kernel.Properties)")
		}
		h.LoadKernels = fn
	}

	if sym, err := table.Lookup(SymbolSetup); err == nil {
		switch fn := sym.(type) {
		case func(context.Context) error:
			h.Setup = fn
		case func() error:
			h.Setup = func(context.Context) error { return fn() }
		default:
			return nil, wrongType(SymbolSetup, sym, "func(context.Context) error")
		}
	}
	return h, nil
}

func wrongType(name string, sym any, want string) error {
	return apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
		fmt.Sprintf("hook symbol %s has type %T, want %s", name, sym, want),
		map[string]any{"symbol": name})
}

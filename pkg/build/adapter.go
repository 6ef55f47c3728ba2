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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NVIDIA/jitbuild/pkg/backend"
	"github.com/NVIDIA/jitbuild/pkg/checksum"
	"github.com/NVIDIA/jitbuild/pkg/defaults"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
)

// Property keys set by the adapter.
const (
	PropSuffix      = "kernelNameSuffix"
	PropVerbose     = "verbose"
	PropOKLEnabled  = "okl/enabled"
	PropSuffixMacro = kernel.DefinePrefix + "SUFFIX"
)

const (
	resultCompiled = "compiled"
	resultCached   = "cached"
	resultError    = "error"
)

// Adapter turns kernel specs into compiled artifacts under a cache
// directory. Artifacts are keyed by a fingerprint of the source content and
// every build parameter, so a spec that did not change is loaded instead of
// compiled.
type Adapter struct {
	device   *backend.Device
	cacheDir string
	compiler Compiler
	verbose  bool
	host     string
	now      func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithVerbose adds verbose=true to the properties of every compile.
func WithVerbose(verbose bool) Option {
	return func(a *Adapter) {
		a.verbose = verbose
	}
}

// WithClock overrides the time source used for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithHost sets the host name recorded in artifact metadata.
func WithHost(host string) Option {
	return func(a *Adapter) {
		a.host = host
	}
}

// NewAdapter returns an adapter building for device into cacheDir.
func NewAdapter(device *backend.Device, cacheDir string, compiler Compiler, opts ...Option) (*Adapter, error) {
	if device == nil {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "build adapter requires a device")
	}
	if cacheDir == "" {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "build adapter requires a cache directory")
	}
	if compiler == nil {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "build adapter requires a compiler")
	}
	// Compilers run inside the build directory, so every path handed to
	// them must be absolute.
	root, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
			"failed to resolve cache directory", err, map[string]any{"cacheDir": cacheDir})
	}

	a := &Adapter{
		device:   device,
		cacheDir: root,
		compiler: compiler,
		now:      time.Now,
	}
	a.host, _ = os.Hostname()
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// CacheDir returns the cache root.
func (a *Adapter) CacheDir() string {
	return a.cacheDir
}

// Device returns the device the adapter builds for.
func (a *Adapter) Device() *backend.Device {
	return a.device
}

// unit is a fully prepared build request.
type unit struct {
	spec        kernel.Spec
	kind        kernel.SourceKind
	symbol      string
	source      []byte
	generated   []byte
	props       kernel.Properties
	fingerprint string
	dir         string
}

// Build compiles spec for the adapter's device, or loads it from the cache
// when an artifact with the same fingerprint exists and passes its
// checksums. Failures are CompileErrors carrying the compiler diagnostics.
func (a *Adapter) Build(ctx context.Context, spec kernel.Spec) (*kernel.Compiled, error) {
	start := time.Now()
	kind := spec.Kind()
	mode := string(a.device.Mode)

	k, err := a.build(ctx, spec)
	kernelBuildDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		kernelBuildsTotal.WithLabelValues(mode, string(kind), resultError).Inc()
		return nil, err
	case k.Cached:
		kernelBuildsTotal.WithLabelValues(mode, string(kind), resultCached).Inc()
	default:
		kernelBuildsTotal.WithLabelValues(mode, string(kind), resultCompiled).Inc()
	}
	return k, nil
}

func (a *Adapter) build(ctx context.Context, spec kernel.Spec) (*kernel.Compiled, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	u, err := a.prepare(spec)
	if err != nil {
		return nil, err
	}

	if k := a.load(ctx, u); k != nil {
		slog.Debug("kernel loaded from cache",
			"request", spec.RequestName,
			"symbol", u.symbol,
			"dir", u.dir,
		)
		return k, nil
	}

	return a.compile(ctx, u)
}

// prepare reads the source and derives the properties and fingerprint for
// the kernel's build path.
func (a *Adapter) prepare(spec kernel.Spec) (*unit, error) {
	src, err := os.ReadFile(spec.SourceFile)
	if err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeCompile,
			fmt.Sprintf("cannot read kernel source %s", spec.SourceFile), err,
			map[string]any{"request": spec.RequestName, "source": spec.SourceFile})
	}

	u := &unit{
		spec:   spec,
		kind:   spec.Kind(),
		symbol: spec.Symbol(),
		source: src,
		props:  spec.Properties.Clone(),
	}

	switch u.kind {
	case kernel.KindPortable:
		u.props.Set(PropSuffix, spec.Suffix)
		if !containsIdentifier(src, spec.EntryName) {
			return nil, unknownEntry(spec, spec.EntryName)
		}
	default:
		if !ValidSuffix(spec.Suffix) {
			return nil, apperrors.NewWithContext(apperrors.ErrCodeCompile,
				fmt.Sprintf("suffix %q cannot be appended to a native symbol", spec.Suffix),
				map[string]any{"request": spec.RequestName, "suffix": spec.Suffix})
		}
		u.props.Set(PropOKLEnabled, false)
		u.props.Set(PropSuffixMacro, spec.Suffix)
		u.generated = Specialize(src, spec.SourceFile, spec.Suffix)
		if !containsIdentifier(u.generated, u.symbol) {
			return nil, unknownEntry(spec, u.symbol)
		}
	}
	if a.verbose {
		u.props.Set(PropVerbose, true)
	}

	u.fingerprint = a.fingerprint(u)
	u.dir = filepath.Join(a.cacheDir, strings.ToLower(string(a.device.Mode)), u.symbol+"-"+u.fingerprint[:16])
	return u, nil
}

func unknownEntry(spec kernel.Spec, symbol string) error {
	return apperrors.NewWithContext(apperrors.ErrCodeCompile,
		fmt.Sprintf("unknown entry symbol %s in %s", symbol, spec.SourceFile),
		map[string]any{"request": spec.RequestName, "source": spec.SourceFile, "entry": spec.EntryName})
}

// containsIdentifier reports whether name occurs in src as a whole C
// identifier.
func containsIdentifier(src []byte, name string) bool {
	if name == "" {
		return false
	}
	needle := []byte(name)
	for i := 0; i < len(src); {
		j := bytes.Index(src[i:], needle)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(needle)
		if (start == 0 || !isIdentByte(src[start-1])) && (end == len(src) || !isIdentByte(src[end])) {
			return true
		}
		i = start + 1
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func (a *Adapter) fingerprint(u *unit) string {
	h := sha256.New()
	fmt.Fprintf(h, "mode=%s\nkind=%s\nentry=%s\nsuffix=%s\n",
		a.device.Mode, u.kind, u.spec.EntryName, u.spec.Suffix)
	h.Write([]byte(u.props.Canonical()))
	h.Write([]byte{0})
	h.Write(u.source)
	return hex.EncodeToString(h.Sum(nil))
}

// load returns the cached artifact for u, or nil when there is none. A
// directory that exists but fails validation is removed so it is rebuilt.
func (a *Adapter) load(ctx context.Context, u *unit) *kernel.Compiled {
	if _, err := os.Stat(u.dir); err != nil {
		return nil
	}

	k, err := a.open(ctx, u)
	if err == nil {
		return k
	}

	slog.Warn("discarding invalid cache entry",
		"request", u.spec.RequestName,
		"dir", u.dir,
		"error", err,
	)
	if rmErr := os.RemoveAll(u.dir); rmErr != nil {
		slog.Warn("failed to remove invalid cache entry", "dir", u.dir, "error", rmErr)
	}
	return nil
}

func (a *Adapter) open(ctx context.Context, u *unit) (*kernel.Compiled, error) {
	meta, err := ReadMetadata(u.dir)
	if err != nil {
		return nil, err
	}
	if meta.Fingerprint != u.fingerprint {
		return nil, fmt.Errorf("fingerprint mismatch: have %s", meta.Fingerprint)
	}
	ok, err := checksum.VerifyChecksums(ctx, u.dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("checksum verification failed")
	}
	return &kernel.Compiled{
		Name:        u.spec.RequestName,
		Symbol:      u.symbol,
		Kind:        u.kind,
		Mode:        string(a.device.Mode),
		Fingerprint: u.fingerprint,
		ArtifactDir: u.dir,
		Binary:      filepath.Join(u.dir, filepath.FromSlash(meta.Binary)),
		Cached:      true,
		BuiltAt:     meta.BuiltAt,
	}, nil
}

func (a *Adapter) compile(ctx context.Context, u *unit) (*kernel.Compiled, error) {
	modeDir := filepath.Dir(u.dir)
	if err := os.MkdirAll(modeDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create cache directory", err)
	}
	tmp, err := os.MkdirTemp(modeDir, ".build-"+u.symbol+"-")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create build directory", err)
	}
	defer os.RemoveAll(tmp)

	source, err := filepath.Abs(u.spec.SourceFile)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to resolve kernel source", err)
	}
	if u.generated != nil {
		source = filepath.Join(tmp, u.symbol+filepath.Ext(u.spec.SourceFile))
		if err := os.WriteFile(source, u.generated, 0600); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write generated source", err)
		}
	}

	slog.Debug("compiling kernel",
		"request", u.spec.RequestName,
		"symbol", u.symbol,
		"kind", u.kind,
		"mode", a.device.Mode,
	)

	binary, err := a.compiler.Compile(ctx, Unit{
		Kind:       u.kind,
		Mode:       a.device.Mode,
		Source:     source,
		Entry:      u.spec.EntryName,
		Symbol:     u.symbol,
		Properties: u.props,
		OutputDir:  tmp,
	})
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			err = apperrors.Wrap(apperrors.ErrCodeCompile, "kernel compile failed", err)
		}
		return nil, apperrors.WrapWithContext(apperrors.CodeOf(err),
			fmt.Sprintf("failed to build %s", u.spec.RequestName), err,
			map[string]any{"request": u.spec.RequestName, "source": u.spec.SourceFile})
	}

	rel, err := filepath.Rel(tmp, binary)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeCompile,
			"compiler wrote its binary outside the build directory",
			map[string]any{"binary": binary})
	}

	builtAt := a.now().UTC()
	meta := &Metadata{
		Format:      defaults.ArtifactFormat,
		Name:        u.spec.RequestName,
		Source:      u.spec.SourceFile,
		Entry:       u.spec.EntryName,
		Suffix:      u.spec.Suffix,
		Symbol:      u.symbol,
		Kind:        u.kind,
		Mode:        string(a.device.Mode),
		Fingerprint: u.fingerprint,
		Binary:      filepath.ToSlash(rel),
		Host:        a.host,
		BuiltAt:     builtAt,
		Properties:  u.props,
	}
	if _, err := writeMetadata(tmp, meta); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to record artifact metadata", err)
	}

	files, err := artifactFiles(tmp)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to list artifact files", err)
	}
	if err := checksum.GenerateChecksums(ctx, tmp, files); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to checksum artifact", err)
	}

	if err := os.Rename(tmp, u.dir); err != nil {
		// Another process installed the same artifact first.
		if k, openErr := a.open(ctx, u); openErr == nil {
			return k, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to install artifact", err)
	}

	return &kernel.Compiled{
		Name:        u.spec.RequestName,
		Symbol:      u.symbol,
		Kind:        u.kind,
		Mode:        string(a.device.Mode),
		Fingerprint: u.fingerprint,
		ArtifactDir: u.dir,
		Binary:      filepath.Join(u.dir, rel),
		BuiltAt:     builtAt,
	}, nil
}

func artifactFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && d.Name() != defaults.ChecksumFileName {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Inspect returns the metadata of every readable artifact in the cache,
// keyed by artifact directory relative to the cache root.
func Inspect(cacheDir string) (map[string]*Metadata, error) {
	entries := make(map[string]*Metadata)
	modes, err := os.ReadDir(cacheDir)
	if err != nil {
		return nil, err
	}
	for _, m := range modes {
		if !m.IsDir() {
			continue
		}
		kernels, err := os.ReadDir(filepath.Join(cacheDir, m.Name()))
		if err != nil {
			return nil, err
		}
		for _, k := range kernels {
			if !k.IsDir() || strings.HasPrefix(k.Name(), ".") {
				continue
			}
			dir := filepath.Join(cacheDir, m.Name(), k.Name())
			meta, err := ReadMetadata(dir)
			if err != nil {
				slog.Debug("skipping unreadable artifact", "dir", dir, "error", err)
				continue
			}
			entries[filepath.ToSlash(filepath.Join(m.Name(), k.Name()))] = meta
		}
	}
	return entries, nil
}

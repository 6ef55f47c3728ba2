/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package oci

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	ocilayout "oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"

	"github.com/NVIDIA/jitbuild/pkg/defaults"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// ArtifactType is the media type of published kernel caches.
const ArtifactType = "application/vnd.nvidia.jitbuild.cache"

// PushOptions configures Push.
type PushOptions struct {
	// CacheDir is the finished cache directory.
	CacheDir string
	// Target is a registry reference or local layout directory.
	Target *Reference
	// Tag is used when Target carries none.
	Tag string
	// Version is recorded in the image version annotation.
	Version string
	// PlainHTTP uses HTTP instead of HTTPS for the registry connection.
	PlainHTTP bool
	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool
}

// PushResult describes a published cache.
type PushResult struct {
	// Digest of the pushed manifest.
	Digest string `json:"digest" yaml:"digest"`
	// Reference is the image reference or layout path with tag.
	Reference string `json:"reference" yaml:"reference"`
	// FinishedAt is the completion marker time of the cache.
	FinishedAt time.Time `json:"finishedAt" yaml:"finishedAt"`
}

// Push publishes opts.CacheDir. It refuses caches without a completion
// marker, since their content may be partial.
func Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	if opts.Target == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "push target is required")
	}
	tag := opts.Target.Tag
	if tag == "" {
		tag = opts.Tag
	}
	if tag == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "tag is required to push OCI artifact")
	}

	marker, err := os.Stat(filepath.Join(opts.CacheDir, defaults.MarkerFileName))
	if err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeInvalidRequest,
			"cache directory has no completion marker, run a build first", err,
			map[string]any{"cacheDir": opts.CacheDir})
	}

	ctx, cancel := context.WithTimeout(ctx, defaults.OCIPushTimeout)
	defer cancel()

	// Stage only finished artifacts; temp build dirs are dot-prefixed.
	stageDir, cleanup, err := stageCache(opts.CacheDir)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	fs, err := file.New(stageDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create file store", err)
	}
	defer func() { _ = fs.Close() }()

	fs.TarReproducible = true

	layerDesc, err := fs.Add(ctx, ".", ociv1.MediaTypeImageLayerGzip, stageDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to add cache directory to store", err)
	}

	finishedAt := marker.ModTime().UTC()
	packOpts := oras.PackManifestOptions{
		Layers: []ociv1.Descriptor{layerDesc},
		ManifestAnnotations: map[string]string{
			ociv1.AnnotationCreated: finishedAt.Format(time.RFC3339),
			ociv1.AnnotationTitle:   "jitbuild kernel cache",
			ociv1.AnnotationVendor:  "NVIDIA",
		},
	}
	if opts.Version != "" {
		packOpts.ManifestAnnotations[ociv1.AnnotationVersion] = opts.Version
	}

	manifestDesc, err := oras.PackManifest(ctx, fs, oras.PackManifestVersion1_1, ArtifactType, packOpts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to pack manifest", err)
	}
	if tagErr := fs.Tag(ctx, manifestDesc, tag); tagErr != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to tag manifest in local store", tagErr)
	}

	dst, refString, err := destination(opts, tag)
	if err != nil {
		return nil, err
	}

	slog.Info("publishing kernel cache",
		"cacheDir", opts.CacheDir,
		"target", refString,
		"finishedAt", finishedAt,
	)

	desc, err := oras.Copy(ctx, fs, tag, dst, tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to push kernel cache", err)
	}

	return &PushResult{
		Digest:     desc.Digest.String(),
		Reference:  refString,
		FinishedAt: finishedAt,
	}, nil
}

// destination opens the push target.
func destination(opts PushOptions, tag string) (oras.Target, string, error) {
	ref := opts.Target
	if !ref.IsOCI {
		store, err := ocilayout.New(ref.LocalPath)
		if err != nil {
			return nil, "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to open OCI layout", err)
		}
		return store, fmt.Sprintf("%s:%s", ref.LocalPath, tag), nil
	}

	registryHost := stripProtocol(ref.Registry)
	if err := ValidateRegistryReference(registryHost, ref.Repository); err != nil {
		return nil, "", err
	}
	repo, err := remote.NewRepository(fmt.Sprintf("%s/%s", registryHost, ref.Repository))
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to initialize remote repository", err)
	}
	repo.PlainHTTP = opts.PlainHTTP
	repo.Client = createAuthClient(opts.PlainHTTP, opts.InsecureTLS)

	return repo, fmt.Sprintf("%s/%s:%s", registryHost, ref.Repository, tag), nil
}

// stageCache hard links every visible entry of cacheDir into a new hidden
// directory inside it and returns that directory with its cleanup.
func stageCache(cacheDir string) (string, func(), error) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return "", nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to read cache directory", err)
	}

	stageDir, err := os.MkdirTemp(cacheDir, ".push-")
	if err != nil {
		return "", nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create staging directory", err)
	}
	cleanup := func() { os.RemoveAll(stageDir) }

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		src := filepath.Join(cacheDir, entry.Name())
		dst := filepath.Join(stageDir, entry.Name())
		if entry.IsDir() {
			err = hardLinkDir(src, dst)
		} else {
			err = os.Link(src, dst)
		}
		if err != nil {
			cleanup()
			return "", nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to stage cache entry", err)
		}
	}
	return stageDir, cleanup, nil
}

// stripProtocol removes http:// or https:// prefix from a registry URL.
func stripProtocol(registry string) string {
	registry = strings.TrimPrefix(registry, "https://")
	registry = strings.TrimPrefix(registry, "http://")
	return registry
}

// createAuthClient creates an HTTP client with optional TLS configuration
// and Docker credential support.
func createAuthClient(plainHTTP, insecureTLS bool) *auth.Client {
	credStore, _ := credentials.NewStoreFromDocker(credentials.StoreOptions{})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !plainHTTP && insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
		}
	}

	return &auth.Client{
		Client:     &http.Client{Transport: transport},
		Cache:      auth.NewCache(),
		Credential: credentials.Credential(credStore),
	}
}

// hardLinkDir recursively creates hard links from src to dst, skipping
// hidden entries.
func hardLinkDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}

	if mkdirErr := os.MkdirAll(dst, srcInfo.Mode()); mkdirErr != nil {
		return fmt.Errorf("failed to create destination directory: %w", mkdirErr)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := hardLinkDir(srcPath, dstPath); err != nil {
				return err
			}
		} else if err := os.Link(srcPath, dstPath); err != nil {
			return fmt.Errorf("failed to create hard link: %w", err)
		}
	}

	return nil
}

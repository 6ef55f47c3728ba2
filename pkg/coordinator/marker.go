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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/NVIDIA/jitbuild/pkg/defaults"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// MarkerPath returns the location of the completion marker in cacheDir.
func MarkerPath(cacheDir string) string {
	return filepath.Join(cacheDir, defaults.MarkerFileName)
}

// WriteMarker creates or truncates the completion marker and sets its
// modification time to t.
func WriteMarker(cacheDir string, t time.Time) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create cache directory", err)
	}

	path := MarkerPath(cacheDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write completion marker", err)
	}
	if _, err := fmt.Fprintln(f, t.UTC().Format(time.RFC3339Nano)); err != nil {
		f.Close()
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write completion marker", err)
	}
	if err := f.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to close completion marker", err)
	}
	if err := os.Chtimes(path, t, t); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to stamp completion marker", err)
	}
	return path, nil
}

// CacheStatus describes a cache directory as seen by external tooling.
type CacheStatus struct {
	CacheDir   string    `json:"cacheDir" yaml:"cacheDir"`
	Finished   bool      `json:"finished" yaml:"finished"`
	FinishedAt time.Time `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	// Stale is true when some artifact file is newer than the marker.
	Stale bool     `json:"stale" yaml:"stale"`
	Newer []string `json:"newer,omitempty" yaml:"newer,omitempty"`
}

// Status inspects cacheDir. The marker mtime is the build-finished time.
func Status(cacheDir string) (*CacheStatus, error) {
	st := &CacheStatus{CacheDir: cacheDir}

	info, err := os.Stat(MarkerPath(cacheDir))
	switch {
	case os.IsNotExist(err):
		return st, nil
	case err != nil:
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to stat completion marker", err)
	}
	st.Finished = true
	st.FinishedAt = info.ModTime()

	err = filepath.WalkDir(cacheDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == defaults.MarkerFileName {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.ModTime().After(st.FinishedAt) {
			rel, err := filepath.Rel(cacheDir, path)
			if err != nil {
				return err
			}
			st.Newer = append(st.Newer, rel)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to scan cache directory", err)
	}
	sort.Strings(st.Newer)
	st.Stale = len(st.Newer) > 0
	return st, nil
}

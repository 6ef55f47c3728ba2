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

package checksum

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/jitbuild/pkg/defaults"
)

// GenerateChecksums creates a checksums.txt file containing SHA256 checksums
// for all provided files. The checksums are written relative to dir.
//
// Returns an error if the context is canceled, any file cannot be read,
// or the checksums file cannot be written.
func GenerateChecksums(ctx context.Context, dir string, files []string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	checksums := make([]string, 0, len(files))

	for _, file := range files {
		sum, err := fileSum(file)
		if err != nil {
			return fmt.Errorf("failed to read %s for checksum: %w", file, err)
		}

		relPath, err := filepath.Rel(dir, file)
		if err != nil {
			relPath = file
		}

		checksums = append(checksums, fmt.Sprintf("%s  %s", sum, filepath.ToSlash(relPath)))
	}

	checksumPath := GetChecksumFilePath(dir)
	content := strings.Join(checksums, "\n") + "\n"

	if err := os.WriteFile(checksumPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write checksums: %w", err)
	}

	slog.Debug("checksums generated",
		"file_count", len(checksums),
		"path", checksumPath,
	)

	return nil
}

// VerifyChecksums recomputes every checksum listed in dir's checksums.txt.
// It returns false without error when a file is missing or differs, and an
// error only when the checksum file itself cannot be read or parsed.
func VerifyChecksums(ctx context.Context, dir string) (bool, error) {
	data, err := os.ReadFile(GetChecksumFilePath(dir))
	if err != nil {
		return false, fmt.Errorf("failed to read checksums: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	entries := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("context cancelled: %w", err)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		want, rel, ok := strings.Cut(line, "  ")
		if !ok {
			return false, fmt.Errorf("malformed checksum line %q", line)
		}
		entries++

		got, err := fileSum(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			slog.Debug("checksum target unreadable", "file", rel, "error", err)
			return false, nil
		}
		if got != want {
			slog.Debug("checksum mismatch", "file", rel)
			return false, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to scan checksums: %w", err)
	}

	return entries > 0, nil
}

// GetChecksumFilePath returns the full path to the checksums.txt file
// in the given directory.
func GetChecksumFilePath(dir string) string {
	return filepath.Join(dir, defaults.ChecksumFileName)
}

func fileSum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

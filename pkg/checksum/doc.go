/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

// Package checksum provides SHA256 checksum generation and verification for
// compiled kernel artifacts in the build cache.
//
// Every artifact directory carries a checksums.txt written by the builder.
// Waiters verify it before trusting a cache entry, so a truncated or
// half-copied artifact is rebuilt instead of loaded.
//
// Usage:
//
//	err := checksum.GenerateChecksums(ctx, artifactDir, files)
//	ok, err := checksum.VerifyChecksums(ctx, artifactDir)
//
// The checksums.txt file format is compatible with sha256sum:
//
//	sha256sum -c checksums.txt
package checksum

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

package server

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/NVIDIA/jitbuild/pkg/defaults"
)

// Config holds server configuration
type Config struct {
	// Server identity
	Name    string
	Version string

	// Listen is the TCP address to bind.
	Listen string

	// JobID must match the job ID of every request. Empty accepts any.
	JobID string

	// Rate limiting configuration
	RateLimit      rate.Limit // requests per second
	RateLimitBurst int        // burst size

	// MaxBodyBytes bounds a request body.
	MaxBodyBytes int64

	// Timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// NewConfig returns a Config with defaults, overridden by environment
// variables where set.
func NewConfig() *Config {
	cfg := &Config{
		Name:              "jitbuild-rendezvous",
		Version:           "undefined",
		Listen:            defaults.RendezvousListen,
		RateLimit:         2000, // every rank issues a handful of requests per build
		RateLimitBurst:    8192,
		MaxBodyBytes:      defaults.RendezvousMaxBodyBytes,
		ReadHeaderTimeout: defaults.ServerReadHeaderTimeout,
		ReadTimeout:       defaults.ServerReadTimeout,
		IdleTimeout:       defaults.ServerIdleTimeout,
		ShutdownTimeout:   defaults.ServerShutdownTimeout,
	}

	if jobID := os.Getenv(defaults.EnvJobID); jobID != "" {
		cfg.JobID = jobID
	}

	if shutdownStr := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); shutdownStr != "" {
		var seconds int
		if _, err := fmt.Sscanf(shutdownStr, "%d", &seconds); err == nil && seconds > 0 {
			cfg.ShutdownTimeout = time.Duration(seconds) * time.Second
		}
	}

	return cfg
}

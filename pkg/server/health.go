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
	"net/http"
	"time"

	"github.com/NVIDIA/jitbuild/pkg/serializer"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string    `json:"status" yaml:"status"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Pending   int       `json:"pendingRounds" yaml:"pendingRounds"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serializer.RespondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Pending:   s.hub.Pending(),
	})
}

// handleReady handles GET /ready. An aborted job is not ready: new ranks
// joining it would fail immediately.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	resp := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Pending:   s.hub.Pending(),
	}
	switch {
	case !ready:
		resp.Status = "not_ready"
		resp.Reason = "service is initializing"
	case s.hub.Err() != nil:
		resp.Status = "not_ready"
		resp.Reason = s.hub.Err().Error()
	default:
		serializer.RespondJSON(w, http.StatusOK, resp)
		return
	}
	serializer.RespondJSON(w, http.StatusServiceUnavailable, resp)
}

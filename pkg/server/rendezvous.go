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
	"log/slog"
	"net/http"

	"github.com/NVIDIA/jitbuild/pkg/comm"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/serializer"
)

// handleExchange handles POST /v1/exchange. The request stays open until
// every member of the round arrived, the job is aborted, or the client
// disconnects.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, apperrors.ErrCodeInvalidRequest,
			"Method not allowed", false, map[string]any{"method": r.Method})
		return
	}

	var req comm.ExchangeRequest
	if err := serializer.DecodeJSON(r, &req, s.config.MaxBodyBytes); err != nil {
		WriteError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, err.Error(), false, nil)
		return
	}
	if !s.acceptJob(w, r, req.JobID) {
		return
	}

	payloads, err := s.hub.Exchange(r.Context(), req.Round)
	if err != nil {
		writeStructuredError(w, r, err)
		return
	}

	serializer.RespondJSON(w, http.StatusOK, comm.ExchangeResponse{Payloads: payloads})
}

// handleAbort handles POST /v1/abort.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r, http.StatusMethodNotAllowed, apperrors.ErrCodeInvalidRequest,
			"Method not allowed", false, map[string]any{"method": r.Method})
		return
	}

	var req comm.AbortRequest
	if err := serializer.DecodeJSON(r, &req, s.config.MaxBodyBytes); err != nil {
		WriteError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, err.Error(), false, nil)
		return
	}
	if !s.acceptJob(w, r, req.JobID) {
		return
	}

	jobAborts.Inc()
	slog.Error("job aborted",
		"rank", req.Rank,
		"message", req.Message,
		"requestID", r.Context().Value(contextKeyRequestID),
	)
	if err := s.hub.Abort(r.Context(), req.Rank, req.Message); err != nil {
		writeStructuredError(w, r, err)
		return
	}

	serializer.RespondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (s *Server) acceptJob(w http.ResponseWriter, r *http.Request, jobID string) bool {
	if s.config.JobID == "" || jobID == s.config.JobID {
		return true
	}
	WriteError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest,
		fmt.Sprintf("job id mismatch: server serves %q", s.config.JobID), false,
		map[string]any{"jobId": jobID})
	return false
}

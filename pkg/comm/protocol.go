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

package comm

import "time"

// HTTP paths served by the rendezvous server.
const (
	ExchangePath = "/v1/exchange"
	AbortPath    = "/v1/abort"
)

// ExchangeRequest is the body of POST /v1/exchange.
type ExchangeRequest struct {
	JobID string `json:"jobId"`
	Round Round  `json:"round"`
}

// ExchangeResponse carries the payloads of a completed round by rank.
type ExchangeResponse struct {
	Payloads [][]byte `json:"payloads"`
}

// AbortRequest is the body of POST /v1/abort.
type AbortRequest struct {
	JobID   string `json:"jobId"`
	Rank    int    `json:"rank"`
	Message string `json:"message"`
}

// ErrorResponse is returned by the rendezvous server for every failed
// request. Code is one of the structured error codes.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}

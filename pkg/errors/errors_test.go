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

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeLookup, "kernel not found")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Code != ErrCodeLookup {
		t.Errorf("expected code %s, got %s", ErrCodeLookup, err.Code)
	}
	if err.Message != "kernel not found" {
		t.Errorf("expected message 'kernel not found', got %s", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeCompile, "build failed", cause)

	if err.Code != ErrCodeCompile {
		t.Errorf("expected code %s, got %s", ErrCodeCompile, err.Code)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped")
	}
}

func TestWrapWithContext(t *testing.T) {
	cause := errors.New("exit status 1")
	ctx := map[string]any{
		"request": "mask_4",
		"source":  "mask.okl",
	}

	err := WrapWithContext(ErrCodeCompile, "kernel build failed", cause, ctx)

	if err.Context == nil {
		t.Fatal("expected context to be set")
	}
	if err.Context["request"] != "mask_4" {
		t.Errorf("expected request to be mask_4")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StructuredError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(ErrCodeLookup, "not found"),
			expected: "[LOOKUP] not found",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeInternal, "failed", errors.New("root cause")),
			expected: "[INTERNAL] failed: root cause",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	inner := New(ErrCodeCompile, "rejected")
	outer := Wrap(ErrCodeAborted, "rank 2 aborted", inner)
	wrapped := fmt.Errorf("builder pass: %w", outer)

	if !HasCode(wrapped, ErrCodeAborted) {
		t.Error("expected ABORTED in chain")
	}
	if !HasCode(wrapped, ErrCodeCompile) {
		t.Error("expected COMPILE in chain")
	}
	if HasCode(wrapped, ErrCodeLookup) {
		t.Error("did not expect LOOKUP in chain")
	}
	if HasCode(errors.New("plain"), ErrCodeInternal) {
		t.Error("plain errors carry no code")
	}
	if got := CodeOf(wrapped); got != ErrCodeAborted {
		t.Errorf("CodeOf() = %s, want %s", got, ErrCodeAborted)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %s, want empty", got)
	}
}

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		ErrCodeConfiguration,
		ErrCodeCompile,
		ErrCodeLookup,
		ErrCodeInvalidHandle,
		ErrCodeAborted,
		ErrCodeTimeout,
		ErrCodeInternal,
		ErrCodeInvalidRequest,
		ErrCodeUnavailable,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if string(code) == "" {
			t.Errorf("error code should not be empty: %v", code)
		}
		if seen[code] {
			t.Errorf("duplicate error code: %v", code)
		}
		seen[code] = true
	}
}

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

// Package backend identifies the execution backend a process builds kernels
// for. The set is closed: Serial (host, native compiler), CUDA, HIP and
// OpenCL (accelerators, portable compiler). OpenMP is recognised but not
// supported. The selection is validated once at startup.
package backend

import (
	"fmt"
	"strings"

	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// Mode is the active backend.
type Mode string

const (
	ModeSerial Mode = "Serial"
	ModeCUDA   Mode = "CUDA"
	ModeHIP    Mode = "HIP"
	ModeOpenCL Mode = "OpenCL"
	ModeOpenMP Mode = "OpenMP"
)

// SupportedModes returns the modes accepted by ParseMode.
func SupportedModes() []Mode {
	return []Mode{ModeSerial, ModeCUDA, ModeHIP, ModeOpenCL}
}

// ParseMode resolves a configured thread model. "CPU" and "SERIAL" are
// aliases for Serial. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CUDA":
		return ModeCUDA, nil
	case "HIP":
		return ModeHIP, nil
	case "OPENCL":
		return ModeOpenCL, nil
	case "CPU", "SERIAL":
		return ModeSerial, nil
	case "OPENMP":
		return "", apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			"OpenMP backend currently not supported",
			map[string]any{"backend": s})
	default:
		return "", apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("invalid requested backend %q", s),
			map[string]any{"supported": SupportedModes()})
	}
}

// IsHost reports whether kernels run on the host, in which case native
// sources are compiled by the system compiler instead of a JIT compiler.
func (m Mode) IsHost() bool {
	return m == ModeSerial || m == ModeOpenMP
}

// Device describes the device a process is bound to.
type Device struct {
	Mode       Mode `json:"mode" yaml:"mode"`
	ID         int  `json:"deviceId" yaml:"deviceId"`
	PlatformID int  `json:"platformId,omitempty" yaml:"platformId,omitempty"`
}

// NewDevice validates the combination of mode and ids.
func NewDevice(mode Mode, id, platformID int) (*Device, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			"device number cannot be negative", map[string]any{"deviceId": id})
	}
	return &Device{Mode: mode, ID: id, PlatformID: platformID}, nil
}

// Config renders the device string understood by the kernel runtime.
func (d *Device) Config() string {
	switch d.Mode {
	case ModeCUDA, ModeHIP:
		return fmt.Sprintf("{mode: '%s', device_id: %d}", d.Mode, d.ID)
	case ModeOpenCL:
		return fmt.Sprintf("{mode: '%s', device_id: %d, platform_id: %d}", d.Mode, d.ID, d.PlatformID)
	default:
		return fmt.Sprintf("{mode: '%s'}", d.Mode)
	}
}

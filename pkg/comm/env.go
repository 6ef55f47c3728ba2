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

import (
	"fmt"
	"os"
	"strconv"

	"github.com/NVIDIA/jitbuild/pkg/defaults"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// Identity is the position of this process in the job as reported by the
// launcher.
type Identity struct {
	Rank   int    `json:"rank" yaml:"rank"`
	Size   int    `json:"size" yaml:"size"`
	Source string `json:"source" yaml:"source"`
}

// launcherVars lists rank and size variables by launcher, most specific
// first.
var launcherVars = []struct {
	source, rank, size string
}{
	{"jitbuild", defaults.EnvRank, defaults.EnvSize},
	{"openmpi", "OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE"},
	{"pmi", "PMI_RANK", "PMI_SIZE"},
	{"slurm", "SLURM_PROCID", "SLURM_NTASKS"},
}

// IdentityFromEnv reads the process position using lookup, which is
// os.LookupEnv when nil. A process started without a launcher is rank 0 of
// a job of one.
func IdentityFromEnv(lookup func(string) (string, bool)) (Identity, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	for _, v := range launcherVars {
		rankStr, ok := lookup(v.rank)
		if !ok {
			continue
		}
		sizeStr, ok := lookup(v.size)
		if !ok {
			return Identity{}, apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
				fmt.Sprintf("%s is set but %s is not", v.rank, v.size),
				map[string]any{"launcher": v.source})
		}

		rank, err := strconv.Atoi(rankStr)
		if err != nil {
			return Identity{}, apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
				fmt.Sprintf("invalid %s", v.rank), err, map[string]any{"value": rankStr})
		}
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return Identity{}, apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
				fmt.Sprintf("invalid %s", v.size), err, map[string]any{"value": sizeStr})
		}
		if err := (Round{Scope: WorldScope, Rank: rank, Size: size}).Validate(); err != nil {
			return Identity{}, apperrors.Wrap(apperrors.ErrCodeConfiguration,
				fmt.Sprintf("invalid job layout from %s", v.source), err)
		}
		return Identity{Rank: rank, Size: size, Source: v.source}, nil
	}

	return Identity{Rank: 0, Size: 1, Source: "default"}, nil
}

// Dial returns the world communicator for id. A job of one needs no
// rendezvous and runs over a private hub; larger jobs require address.
func Dial(id Identity, address, jobID string, opts ...ClientOption) (*Comm, error) {
	if address == "" {
		if id.Size == 1 {
			return NewHub().Connect(0, 1)
		}
		return nil, apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("a job of %d processes requires a rendezvous address (%s)", id.Size, defaults.EnvRendezvous),
			map[string]any{"size": id.Size})
	}

	client, err := NewClient(address, jobID, opts...)
	if err != nil {
		return nil, err
	}
	return New(client, id.Rank, id.Size)
}

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

package build

import (
	"fmt"
	"path/filepath"
	"regexp"
)

var (
	funcPattern   = regexp.MustCompile(`\bFUNC\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)`)
	suffixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)
)

// ValidSuffix reports whether suffix can be appended to a C identifier.
func ValidSuffix(suffix string) bool {
	return suffixPattern.MatchString(suffix)
}

// Specialize rewrites every FUNC(name) in src to name+suffix and prefixes a
// line directive so compiler diagnostics still point at the original file.
func Specialize(src []byte, sourcePath, suffix string) []byte {
	body := funcPattern.ReplaceAll(src, []byte("${1}"+suffix))

	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		abs = sourcePath
	}
	header := fmt.Sprintf("/* generated by jitbuild from %s, suffix %q */\n#line 1 %q\n", filepath.Base(sourcePath), suffix, abs)

	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}

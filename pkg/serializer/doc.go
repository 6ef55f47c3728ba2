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

// Package serializer encodes reports and decodes configuration files.
//
// Three output formats are supported:
//
//   - JSON: machine-readable, indented
//   - YAML: human-readable, used for config files and manifests
//   - Table: flattened FIELD/VALUE listing for terminals (write only)
//
// Writing:
//
//	w := serializer.NewFileWriterOrStdout(serializer.FormatYAML, path)
//	defer w.Close()
//	if err := w.Serialize(ctx, report); err != nil {
//	    return err
//	}
//
// Reading, with the format taken from the file extension:
//
//	cfg, err := serializer.FromFile[config.Config]("jitbuild.yaml")
//
// HTTP helpers used by the rendezvous server:
//
//	serializer.RespondJSON(w, http.StatusOK, resp)
//	err := serializer.DecodeJSON(r, &req, maxBytes)
package serializer

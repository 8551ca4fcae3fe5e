// Copyright 2026 The AppForge Authors
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

// Package snapshot serializes a workspace's deployment topology to a
// portable document and replays it into another workspace. Snapshots carry
// configuration and dependency shape only; secret material never leaves the
// cluster and is regenerated on import.
package snapshot

import "time"

// CurrentVersion is the snapshot document version this build reads and
// writes.
const CurrentVersion = 1

// Document is the portable workspace snapshot.
type Document struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	ExportedBy string            `json:"exported_by,omitempty"`
	Workspace  WorkspaceMeta     `json:"workspace"`
	Services   []Service         `json:"services"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// WorkspaceMeta describes the source workspace. Informational only; import
// targets are chosen by the caller.
type WorkspaceMeta struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Service is one deployment in the snapshot. DependsOn holds deployment
// names, not ids: names survive the trip between workspaces.
type Service struct {
	Recipe    string         `json:"recipe"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Status    string         `json:"status,omitempty"`
}

// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package capability supervises external tool servers.
//
// Servers are declared in a JSON manifest and speak the MCP protocol over
// stdio (a spawned subprocess) or HTTP (JSON-RPC against a URL). The Host
// starts every enabled server, exposes their tools under stable
// tool::<server>::<tool> URIs, and routes calls to the owning session.
package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrManifest reports a manifest that could not be loaded or parsed.
var ErrManifest = errors.New("invalid capability manifest")

// ServerKind is the transport a server speaks.
type ServerKind int

const (
	// KindInvalid marks a server entry with no usable transport.
	KindInvalid ServerKind = iota
	// KindStdio spawns the server as a subprocess.
	KindStdio
	// KindHTTP talks JSON-RPC to a remote URL.
	KindHTTP
)

func (k ServerKind) String() string {
	switch k {
	case KindStdio:
		return "stdio"
	case KindHTTP:
		return "http"
	default:
		return "invalid"
	}
}

// ServerConfig is one server entry in the manifest.
type ServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Enabled *bool             `json:"enabled,omitempty"`
}

// IsEnabled reports whether the server should be started. Absent means
// enabled.
func (c ServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Kind derives the transport from the populated fields. A command wins over
// a URL when both are present.
func (c ServerConfig) Kind() ServerKind {
	if c.Command != "" {
		return KindStdio
	}
	if c.URL != "" {
		return KindHTTP
	}
	return KindInvalid
}

// Manifest is the parsed server declaration file.
type Manifest struct {
	Servers map[string]ServerConfig `json:"mcpServers"`

	// raw is the generic decode of the manifest bytes, kept so the hash
	// covers every field the file carries, including ones this version
	// does not model.
	raw any
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest bytes. Unknown keys are ignored but still
// contribute to the hash.
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if manifest.Servers == nil {
		manifest.Servers = map[string]ServerConfig{}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	manifest.raw = raw

	return &manifest, nil
}

// Hash returns a hex digest of the manifest's semantic content. Two files
// that decode to the same JSON value hash identically regardless of key
// order or whitespace.
func (m *Manifest) Hash() string {
	// json.Marshal emits map keys in sorted order, which makes the
	// re-encoding canonical.
	canonical, err := json.Marshal(m.raw)
	if err != nil {
		canonical = nil
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

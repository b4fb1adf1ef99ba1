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

package capability

import (
	"context"
)

// Tool is one callable tool advertised by a server.
type Tool struct {
	Server      string
	Name        string
	Description string
	InputSchema map[string]any
}

// URI returns the tool's canonical address.
func (t Tool) URI() string {
	return FormatToolURI(t.Server, t.Name)
}

// Session is a live connection to one capability server. The tool list is
// fetched once at connect time; servers are assumed not to change their
// toolset mid-session.
type Session interface {
	// Server returns the manifest name of the server.
	Server() string

	// Tools returns the tools advertised at connect time.
	Tools() []Tool

	// Call invokes one tool and returns its result map. Tool-level
	// failures are reported inside the map under the "error" key;
	// transport failures are returned as errors.
	Call(ctx context.Context, tool string, args map[string]any) (map[string]any, error)

	// Close tears the session down. Safe to call more than once.
	Close() error
}

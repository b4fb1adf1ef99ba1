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
	"errors"
	"fmt"
	"strings"
)

// uriScheme prefixes every tool URI.
const uriScheme = "tool"

// uriSeparator joins the scheme, server, and tool segments.
const uriSeparator = "::"

// ErrInvalidToolURI reports a string that does not follow the
// tool::<server>::<tool> grammar.
var ErrInvalidToolURI = errors.New("invalid tool URI")

// ToolURI addresses one tool on one server.
type ToolURI struct {
	Server string
	Tool   string
}

// String renders the URI in canonical form.
func (u ToolURI) String() string {
	return uriScheme + uriSeparator + u.Server + uriSeparator + u.Tool
}

// FormatToolURI builds the canonical URI for a server/tool pair.
func FormatToolURI(server, tool string) string {
	return ToolURI{Server: server, Tool: tool}.String()
}

// ParseToolURI parses the tool::<server>::<tool> form. Both names must be
// nonempty and may not contain the separator, so the segment count is
// exactly three.
func ParseToolURI(s string) (ToolURI, error) {
	parts := strings.Split(s, uriSeparator)
	if len(parts) != 3 {
		return ToolURI{}, fmt.Errorf("%w: %q", ErrInvalidToolURI, s)
	}
	if parts[0] != uriScheme || parts[1] == "" || parts[2] == "" {
		return ToolURI{}, fmt.Errorf("%w: %q", ErrInvalidToolURI, s)
	}
	return ToolURI{Server: parts[1], Tool: parts[2]}, nil
}

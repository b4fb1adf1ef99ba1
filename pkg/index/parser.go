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

package index

import (
	"log/slog"
	"strings"
)

const (
	groupMarker    = "[GROUP]"
	l2IntentLabel  = "L2 Intent:"
	l1IntentsLabel = "L1 Intents:"
	listItemPrefix = "- "
)

// Group is one parsed category: a broad intent plus the narrow intents it
// covers.
type Group struct {
	Intent    string
	L1Intents []string
}

// ParseGroups extracts category groups from generated text. The expected
// shape is [GROUP] blocks, each with an "L2 Intent:" line and an
// "L1 Intents:" list of "- " items. Blocks missing either part are logged
// and skipped; a sloppy generation degrades the index instead of failing
// the build.
func ParseGroups(text string) []Group {
	var groups []Group
	for _, block := range strings.Split(text, groupMarker) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		group, ok := parseGroupBlock(block)
		if !ok {
			slog.Warn("Skipping malformed category block", "block", truncate(block, 120))
			continue
		}
		groups = append(groups, group)
	}
	return groups
}

func parseGroupBlock(block string) (Group, bool) {
	var group Group
	inList := false

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, l2IntentLabel):
			group.Intent = strings.TrimSpace(strings.TrimPrefix(line, l2IntentLabel))
			inList = false
		case strings.HasPrefix(line, l1IntentsLabel):
			inList = true
		case inList && strings.HasPrefix(line, listItemPrefix):
			item := strings.TrimSpace(strings.TrimPrefix(line, listItemPrefix))
			if item != "" {
				group.L1Intents = append(group.L1Intents, item)
			}
		}
	}

	if group.Intent == "" || len(group.L1Intents) == 0 {
		return Group{}, false
	}
	return group, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGroups(t *testing.T) {
	text := `[GROUP]
L2 Intent: manage email correspondence
L1 Intents:
- send an email to someone
- list messages in the inbox

[GROUP]
L2 Intent: organize the mailbox
L1 Intents:
- move a message to a folder
`

	groups := ParseGroups(text)
	if assert.Len(t, groups, 2) {
		assert.Equal(t, "manage email correspondence", groups[0].Intent)
		assert.Equal(t, []string{
			"send an email to someone",
			"list messages in the inbox",
		}, groups[0].L1Intents)
		assert.Equal(t, "organize the mailbox", groups[1].Intent)
		assert.Equal(t, []string{"move a message to a folder"}, groups[1].L1Intents)
	}
}

func TestParseGroups_LeadingTextBeforeFirstMarker(t *testing.T) {
	text := `Here are the categories:
[GROUP]
L2 Intent: search the web
L1 Intents:
- look up a query on the web
`

	groups := ParseGroups(text)
	if assert.Len(t, groups, 1) {
		assert.Equal(t, "search the web", groups[0].Intent)
	}
}

func TestParseGroups_SkipsMalformedBlocks(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "missing intent line",
			text: "[GROUP]\nL1 Intents:\n- something\n",
		},
		{
			name: "missing list",
			text: "[GROUP]\nL2 Intent: a category\n",
		},
		{
			name: "empty list items",
			text: "[GROUP]\nL2 Intent: a category\nL1 Intents:\n-\n",
		},
		{
			name: "empty input",
			text: "",
		},
		{
			name: "no markers at all",
			text: "just some prose without any structure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, ParseGroups(tt.text))
		})
	}
}

func TestParseGroups_MixedValidAndMalformed(t *testing.T) {
	text := `[GROUP]
L2 Intent: valid category
L1 Intents:
- a capability

[GROUP]
this block has no structure
`

	groups := ParseGroups(text)
	if assert.Len(t, groups, 1) {
		assert.Equal(t, "valid category", groups[0].Intent)
	}
}

func TestParseGroups_ItemsOutsideListAreIgnored(t *testing.T) {
	text := `[GROUP]
- stray item before the list
L2 Intent: a category
L1 Intents:
- real item
`

	groups := ParseGroups(text)
	if assert.Len(t, groups, 1) {
		assert.Equal(t, []string{"real item"}, groups[0].L1Intents)
	}
}

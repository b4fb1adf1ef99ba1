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

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "valid object",
			raw:  `{"to":"alice@x","subject":"lunch"}`,
			want: map[string]any{"to": "alice@x", "subject": "lunch"},
		},
		{
			name: "empty string",
			raw:  "",
			want: map[string]any{},
		},
		{
			name: "whitespace only",
			raw:  "   \n",
			want: map[string]any{},
		},
		{
			name: "trailing comma repaired",
			raw:  `{"to":"alice@x",}`,
			want: map[string]any{"to": "alice@x"},
		},
		{
			name: "single quotes repaired",
			raw:  `{'to': 'alice@x'}`,
			want: map[string]any{"to": "alice@x"},
		},
		{
			name:    "not an object",
			raw:     `[1, 2, 3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeArguments(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

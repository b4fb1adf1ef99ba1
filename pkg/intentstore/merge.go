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

package intentstore

import (
	"encoding/json"
)

// MergeMetadata combines an update into existing metadata.
//
// When both sides of a key hold JSON-encoded string arrays, the result is
// their union: existing elements keep their order, new elements are appended
// in update order, duplicates are dropped. Any other pairing overwrites with
// the update value. Keys absent from updates are untouched. The merge is
// idempotent: applying the same update twice yields the same result.
func MergeMetadata(existing, updates map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}

	for k, v := range updates {
		current, ok := merged[k]
		if !ok {
			merged[k] = v
			continue
		}
		currentList, currentOK := decodeStringList(current)
		updateList, updateOK := decodeStringList(v)
		if !currentOK || !updateOK {
			merged[k] = v
			continue
		}
		merged[k] = encodeStringList(unionLists(currentList, updateList))
	}
	return merged
}

// EncodeList serializes a string list for storage as a metadata value.
func EncodeList(values []string) string {
	return encodeStringList(values)
}

// DecodeList parses a metadata value as a string list. ok is false when the
// value is not a JSON string array.
func DecodeList(value string) (list []string, ok bool) {
	return decodeStringList(value)
}

func decodeStringList(value string) ([]string, bool) {
	var list []string
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return nil, false
	}
	return list, true
}

func encodeStringList(values []string) string {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		// A []string cannot fail to marshal.
		return "[]"
	}
	return string(encoded)
}

func unionLists(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lists := range [][]string{a, b} {
		for _, v := range lists {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

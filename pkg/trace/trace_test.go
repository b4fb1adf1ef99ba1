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

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndSnapshot(t *testing.T) {
	log := NewLog()
	log.Append("thinking about it", "do", "queued")
	log.Append("done thinking", "task_complete", "ok")

	snap := log.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "thinking about it", snap[0].Reasoning)
	assert.Equal(t, "do", snap[0].Action)
	assert.Equal(t, "queued", snap[0].Result)
	assert.Equal(t, "task_complete", snap[1].Action)
	assert.False(t, snap[0].Timestamp.IsZero())
	assert.False(t, snap[0].Timestamp.After(snap[1].Timestamp))
}

func TestLog_Reset(t *testing.T) {
	log := NewLog()
	log.Append("a", "b", "c")
	require.Equal(t, 1, log.Len())

	log.Reset()
	assert.Equal(t, 0, log.Len())
	assert.Empty(t, log.Snapshot())

	// The log is reusable after a reset.
	log.Append("x", "y", "z")
	assert.Equal(t, 1, log.Len())
}

func TestLog_SnapshotIsCopy(t *testing.T) {
	log := NewLog()
	log.Append("a", "b", "c")

	snap := log.Snapshot()
	snap[0].Result = "mutated"

	assert.Equal(t, "c", log.Snapshot()[0].Result)
}

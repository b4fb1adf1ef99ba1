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

// Package trace records the reasoning steps of a single task.
//
// A Log is scoped to one task run: the cognitive loop resets it when a task
// starts, appends one entry per reason or act step, and snapshots it for
// prompt rendering. There is exactly one writer, so the log needs no locking.
package trace

import (
	"time"
)

// Entry is one recorded step: what the model was thinking, what it did,
// and what came back.
type Entry struct {
	Timestamp time.Time
	Reasoning string
	Action    string
	Result    string
}

// Log is the ordered, append-only record of a task's steps.
type Log struct {
	entries []Entry
}

// NewLog creates an empty trace log.
func NewLog() *Log {
	return &Log{}
}

// Reset discards all entries. Called at the start of every task.
func (l *Log) Reset() {
	l.entries = l.entries[:0]
}

// Append records one step with the current timestamp.
func (l *Log) Append(reasoning, action, result string) {
	l.entries = append(l.entries, Entry{
		Timestamp: time.Now(),
		Reasoning: reasoning,
		Action:    action,
		Result:    result,
	})
}

// Snapshot returns a copy of the entries in insertion order.
func (l *Log) Snapshot() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	return len(l.entries)
}

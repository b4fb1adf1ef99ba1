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

// Metadata keys shared by the index builder and the kernel.
const (
	// KeyType distinguishes record kinds.
	KeyType = "type"
	// TypeL1 marks a narrow per-tool intent.
	TypeL1 = "L1"
	// TypeL2 marks a broad category intent.
	TypeL2 = "L2"

	// KeyTools holds the JSON list of tool URIs an L1 intent resolves to.
	KeyTools = "tools"
	// KeySchema holds the JSON input schema of the intent's tool.
	KeySchema = "schema"
	// KeyServer names the server a category was derived from.
	KeyServer = "server"
	// KeyL1Intents holds the JSON list of L1 texts a category covers.
	KeyL1Intents = "l1_intents"

	// KeyConfigHash stores the capability manifest hash the index was
	// built from, on the collection-metadata record.
	KeyConfigHash = "config_hash"
)

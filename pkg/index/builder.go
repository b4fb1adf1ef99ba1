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

// Package index builds the two-level intent index over the available tools.
//
// Level 1 holds one narrow intent per tool; level 2 holds broad category
// intents that group the narrow ones per server. Both levels deduplicate
// through the vector store: a generated intent close enough to an existing
// record merges into it instead of inserting a near-duplicate. The whole
// index is keyed by a hash of the capability manifest, so an unchanged
// manifest skips the rebuild entirely.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kadirpekel/mentis/pkg/capability"
	"github.com/kadirpekel/mentis/pkg/intentstore"
	"github.com/kadirpekel/mentis/pkg/llm"
	"github.com/kadirpekel/mentis/pkg/prompt"
)

// DefaultInsertionThreshold is the similarity above which a generated
// intent is merged into an existing record instead of inserted.
const DefaultInsertionThreshold = 0.92

// Builder generates and maintains the intent index.
type Builder struct {
	store     intentstore.Store
	provider  llm.Provider
	renderer  *prompt.Renderer
	threshold float32
}

// Options configures a Builder.
type Options struct {
	// InsertionThreshold overrides DefaultInsertionThreshold when > 0.
	InsertionThreshold float32
}

// NewBuilder wires a Builder over its collaborators.
func NewBuilder(store intentstore.Store, provider llm.Provider, renderer *prompt.Renderer, opts Options) *Builder {
	threshold := opts.InsertionThreshold
	if threshold <= 0 {
		threshold = DefaultInsertionThreshold
	}
	return &Builder{
		store:     store,
		provider:  provider,
		renderer:  renderer,
		threshold: threshold,
	}
}

// Sync brings the index in line with the manifest. When the stored manifest
// hash matches and force is false, nothing happens and rebuilt is false.
// Otherwise the index is cleared and rebuilt from the given tools, and the
// new hash is persisted only after the rebuild completed, so an interrupted
// build is retried on the next sync.
func (b *Builder) Sync(ctx context.Context, tools []capability.Tool, manifest *capability.Manifest, force bool) (rebuilt bool, err error) {
	hash := manifest.Hash()

	if !force {
		metadata, err := b.store.LoadCollectionMetadata(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to load index metadata: %w", err)
		}
		if metadata[intentstore.KeyConfigHash] == hash {
			slog.Debug("Intent index is current", "hash", hash)
			return false, nil
		}
	}

	slog.Info("Rebuilding intent index", "tools", len(tools), "hash", hash)
	if err := b.store.Clear(ctx); err != nil {
		return false, fmt.Errorf("failed to clear index: %w", err)
	}

	sorted := make([]capability.Tool, len(tools))
	copy(sorted, tools)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Server != sorted[j].Server {
			return sorted[i].Server < sorted[j].Server
		}
		return sorted[i].Name < sorted[j].Name
	})

	intentsByServer, err := b.buildL1(ctx, sorted)
	if err != nil {
		return false, err
	}
	if err := b.buildL2(ctx, intentsByServer); err != nil {
		return false, err
	}

	if err := b.store.SaveCollectionMetadata(ctx, map[string]string{
		intentstore.KeyConfigHash: hash,
	}); err != nil {
		return false, fmt.Errorf("failed to save index metadata: %w", err)
	}
	return true, nil
}

// buildL1 generates one narrow intent per tool and returns the canonical
// intent texts grouped by server.
func (b *Builder) buildL1(ctx context.Context, tools []capability.Tool) (map[string][]string, error) {
	intentsByServer := make(map[string][]string)

	for _, tool := range tools {
		schemaJSON := encodeSchema(tool.InputSchema)
		text, err := b.generateL1Text(ctx, tool, schemaJSON)
		if err != nil {
			return nil, err
		}
		if text == "" {
			slog.Warn("No intent text for tool, skipping", "tool", tool.URI())
			continue
		}

		canonical, err := b.upsertL1(ctx, tool, text, schemaJSON)
		if err != nil {
			return nil, err
		}
		intentsByServer[tool.Server] = append(intentsByServer[tool.Server], canonical)
	}
	return intentsByServer, nil
}

func (b *Builder) generateL1Text(ctx context.Context, tool capability.Tool, schemaJSON string) (string, error) {
	rendered, err := b.renderer.Render(prompt.TemplateL1Generate, prompt.L1Data{
		ServerName:  tool.Server,
		ToolName:    tool.Name,
		Description: tool.Description,
		Schema:      schemaJSON,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render intent prompt for %s: %w", tool.URI(), err)
	}

	text, err := b.generate(ctx, rendered)
	if err != nil {
		return "", fmt.Errorf("failed to generate intent for %s: %w", tool.URI(), err)
	}
	if text == "" {
		// Fall back to the tool's own description rather than losing
		// the tool from the index.
		text = strings.TrimSpace(tool.Description)
	}
	return text, nil
}

// upsertL1 inserts the intent or merges it into a close-enough existing
// record. It returns the text under which the intent is actually indexed.
func (b *Builder) upsertL1(ctx context.Context, tool capability.Tool, text, schemaJSON string) (string, error) {
	uri := tool.URI()
	toolsList := intentstore.EncodeList([]string{uri})

	candidates, err := b.store.QueryByText(ctx, text, 1, map[string]string{
		intentstore.KeyType: intentstore.TypeL1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to query index for %s: %w", uri, err)
	}

	if len(candidates) > 0 && candidates[0].Similarity >= b.threshold {
		existing := candidates[0]
		updates := map[string]string{intentstore.KeyTools: toolsList}
		if existing.Metadata[intentstore.KeySchema] == "" && schemaJSON != "" {
			updates[intentstore.KeySchema] = schemaJSON
		}
		if err := b.store.UpdateMetadata(ctx, existing.ID, updates); err != nil {
			return "", fmt.Errorf("failed to merge intent for %s: %w", uri, err)
		}
		slog.Debug("Merged intent into existing record",
			"tool", uri,
			"record", existing.ID,
			"similarity", existing.Similarity)
		return existing.Text, nil
	}

	id := fmt.Sprintf("intent::%s::%s::%s", intentstore.TypeL1, tool.Server, tool.Name)
	metadata := map[string]string{
		intentstore.KeyType:  intentstore.TypeL1,
		intentstore.KeyTools: toolsList,
	}
	if schemaJSON != "" {
		metadata[intentstore.KeySchema] = schemaJSON
	}
	if err := b.store.PutItem(ctx, id, text, metadata); err != nil {
		return "", fmt.Errorf("failed to store intent for %s: %w", uri, err)
	}
	return text, nil
}

// buildL2 generates category intents per server over the indexed L1 texts.
func (b *Builder) buildL2(ctx context.Context, intentsByServer map[string][]string) error {
	servers := make([]string, 0, len(intentsByServer))
	for server := range intentsByServer {
		servers = append(servers, server)
	}
	sort.Strings(servers)

	for _, server := range servers {
		intents := intentsByServer[server]
		if len(intents) == 0 {
			continue
		}

		rendered, err := b.renderer.Render(prompt.TemplateL2Generate, prompt.L2Data{
			ServerName: server,
			L1Intents:  intents,
		})
		if err != nil {
			return fmt.Errorf("failed to render category prompt for %s: %w", server, err)
		}
		text, err := b.generate(ctx, rendered)
		if err != nil {
			return fmt.Errorf("failed to generate categories for %s: %w", server, err)
		}

		groups := ParseGroups(text)
		if len(groups) == 0 {
			slog.Warn("No usable categories generated", "server", server)
			continue
		}
		for i, group := range groups {
			if err := b.upsertL2(ctx, server, i, group); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) upsertL2(ctx context.Context, server string, position int, group Group) error {
	coveredList := intentstore.EncodeList(group.L1Intents)

	candidates, err := b.store.QueryByText(ctx, group.Intent, 1, map[string]string{
		intentstore.KeyType: intentstore.TypeL2,
	})
	if err != nil {
		return fmt.Errorf("failed to query categories for %s: %w", server, err)
	}

	if len(candidates) > 0 && candidates[0].Similarity >= b.threshold {
		existing := candidates[0]
		if err := b.store.UpdateMetadata(ctx, existing.ID, map[string]string{
			intentstore.KeyL1Intents: coveredList,
		}); err != nil {
			return fmt.Errorf("failed to merge category for %s: %w", server, err)
		}
		slog.Debug("Merged category into existing record",
			"server", server,
			"record", existing.ID,
			"similarity", existing.Similarity)
		return nil
	}

	id := fmt.Sprintf("intent::%s::%s::%d", intentstore.TypeL2, server, position)
	return b.store.PutItem(ctx, id, group.Intent, map[string]string{
		intentstore.KeyType:      intentstore.TypeL2,
		intentstore.KeyServer:    server,
		intentstore.KeyL1Intents: coveredList,
	})
}

// generate runs one deterministic completion and returns its trimmed text.
func (b *Builder) generate(ctx context.Context, promptText string) (string, error) {
	var zero float32
	resp, err := b.provider.Generate(ctx, &llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: promptText}},
		Temperature: &zero,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func encodeSchema(schema map[string]any) string {
	if len(schema) == 0 {
		return ""
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(data)
}

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
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mentis/pkg/capability"
	"github.com/kadirpekel/mentis/pkg/intentstore"
	"github.com/kadirpekel/mentis/pkg/llm"
	"github.com/kadirpekel/mentis/pkg/prompt"
)

// memStore is an in-memory Store where query similarity is 1.0 on exact
// text match and 0.0 otherwise.
type memStore struct {
	items    map[string]intentstore.Item
	order    []string
	collMeta map[string]string
	clears   int
}

func newMemStore() *memStore {
	return &memStore{
		items:    make(map[string]intentstore.Item),
		collMeta: map[string]string{},
	}
}

func (s *memStore) PutItem(_ context.Context, id, text string, metadata map[string]string) error {
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = intentstore.Item{ID: id, Text: text, Metadata: metadata}
	return nil
}

func (s *memStore) UpdateMetadata(_ context.Context, id string, updates map[string]string) error {
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("record %s not found", id)
	}
	item.Metadata = intentstore.MergeMetadata(item.Metadata, updates)
	s.items[id] = item
	return nil
}

func (s *memStore) QueryByText(_ context.Context, text string, n int, where map[string]string) ([]intentstore.Item, error) {
	var results []intentstore.Item
	for _, id := range s.order {
		item := s.items[id]
		match := true
		for k, v := range where {
			if item.Metadata[k] != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		item.Similarity = 0
		if item.Text == text {
			item.Similarity = 1
		}
		results = append(results, item)
	}
	// Exact matches first.
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (intentstore.Item, bool, error) {
	item, ok := s.items[id]
	return item, ok, nil
}

func (s *memStore) Clear(context.Context) error {
	s.items = make(map[string]intentstore.Item)
	s.order = nil
	s.collMeta = map[string]string{}
	s.clears++
	return nil
}

func (s *memStore) LoadCollectionMetadata(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.collMeta))
	for k, v := range s.collMeta {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SaveCollectionMetadata(_ context.Context, metadata map[string]string) error {
	s.collMeta = metadata
	return nil
}

func (s *memStore) itemsOfType(kind string) []intentstore.Item {
	var out []intentstore.Item
	for _, id := range s.order {
		if s.items[id].Metadata[intentstore.KeyType] == kind {
			out = append(out, s.items[id])
		}
	}
	return out
}

// scriptedProvider answers tool-intent prompts from l1Texts (keyed by tool
// name) and category prompts from l2Text.
type scriptedProvider struct {
	l1Texts map[string]string
	l2Text  string
	calls   int
}

func (p *scriptedProvider) Name() string {
	return "scripted"
}

func (p *scriptedProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.calls++
	promptText := req.Messages[len(req.Messages)-1].Content
	if strings.Contains(promptText, "[GROUP]") {
		return &llm.Response{Text: p.l2Text}, nil
	}
	for toolName, text := range p.l1Texts {
		if strings.Contains(promptText, "Tool: "+toolName) {
			return &llm.Response{Text: text}, nil
		}
	}
	return &llm.Response{Text: "do something unspecified"}, nil
}

func newTestBuilder(t *testing.T, store intentstore.Store, provider llm.Provider) *Builder {
	t.Helper()
	renderer, err := prompt.NewRenderer("")
	require.NoError(t, err)
	return NewBuilder(store, provider, renderer, Options{})
}

func mailManifest(t *testing.T) *capability.Manifest {
	t.Helper()
	manifest, err := capability.ParseManifest([]byte(`{"mcpServers": {"mail": {"command": "mail-server"}}}`))
	require.NoError(t, err)
	return manifest
}

func mailTools() []capability.Tool {
	return []capability.Tool{
		{
			Server:      "mail",
			Name:        "send_email",
			Description: "Send an email",
			InputSchema: map[string]any{"type": "object"},
		},
		{
			Server:      "mail",
			Name:        "list_inbox",
			Description: "List inbox messages",
		},
	}
}

func TestSync_BuildsBothLevels(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{
		l1Texts: map[string]string{
			"send_email": "send an email to someone",
			"list_inbox": "list messages in the inbox",
		},
		l2Text: "[GROUP]\nL2 Intent: manage email\nL1 Intents:\n- send an email to someone\n- list messages in the inbox\n",
	}
	builder := newTestBuilder(t, store, provider)

	rebuilt, err := builder.Sync(context.Background(), mailTools(), mailManifest(t), false)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	l1 := store.itemsOfType(intentstore.TypeL1)
	require.Len(t, l1, 2)
	assert.Equal(t, "intent::L1::mail::list_inbox", l1[0].ID)
	assert.Equal(t, "list messages in the inbox", l1[0].Text)
	assert.Equal(t, `["tool::mail::list_inbox"]`, l1[0].Metadata[intentstore.KeyTools])
	assert.Equal(t, "intent::L1::mail::send_email", l1[1].ID)
	assert.Equal(t, `{"type":"object"}`, l1[1].Metadata[intentstore.KeySchema])

	l2 := store.itemsOfType(intentstore.TypeL2)
	require.Len(t, l2, 1)
	assert.Equal(t, "intent::L2::mail::0", l2[0].ID)
	assert.Equal(t, "manage email", l2[0].Text)
	assert.Equal(t, "mail", l2[0].Metadata[intentstore.KeyServer])
	covered, ok := intentstore.DecodeList(l2[0].Metadata[intentstore.KeyL1Intents])
	require.True(t, ok)
	assert.Len(t, covered, 2)

	assert.Equal(t, mailManifest(t).Hash(), store.collMeta[intentstore.KeyConfigHash])
}

func TestSync_SkipsWhenHashMatches(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{
		l1Texts: map[string]string{"send_email": "send an email to someone"},
		l2Text:  "[GROUP]\nL2 Intent: manage email\nL1 Intents:\n- send an email to someone\n",
	}
	builder := newTestBuilder(t, store, provider)
	manifest := mailManifest(t)

	rebuilt, err := builder.Sync(context.Background(), mailTools(), manifest, false)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	callsAfterBuild := provider.calls
	rebuilt, err = builder.Sync(context.Background(), mailTools(), manifest, false)
	require.NoError(t, err)
	assert.False(t, rebuilt)
	assert.Equal(t, callsAfterBuild, provider.calls, "a skipped sync must not call the model")
	assert.Equal(t, 1, store.clears)
}

func TestSync_RebuildsWhenManifestChanges(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{
		l1Texts: map[string]string{"send_email": "send an email to someone"},
		l2Text:  "[GROUP]\nL2 Intent: manage email\nL1 Intents:\n- send an email to someone\n",
	}
	builder := newTestBuilder(t, store, provider)

	_, err := builder.Sync(context.Background(), mailTools(), mailManifest(t), false)
	require.NoError(t, err)

	changed, err := capability.ParseManifest([]byte(`{"mcpServers": {"mail": {"command": "mail-server", "args": ["-v"]}}}`))
	require.NoError(t, err)

	rebuilt, err := builder.Sync(context.Background(), mailTools(), changed, false)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, changed.Hash(), store.collMeta[intentstore.KeyConfigHash])
}

func TestSync_ForceRebuildsDespiteMatchingHash(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{
		l1Texts: map[string]string{"send_email": "send an email to someone"},
		l2Text:  "[GROUP]\nL2 Intent: manage email\nL1 Intents:\n- send an email to someone\n",
	}
	builder := newTestBuilder(t, store, provider)
	manifest := mailManifest(t)

	_, err := builder.Sync(context.Background(), mailTools(), manifest, false)
	require.NoError(t, err)

	rebuilt, err := builder.Sync(context.Background(), mailTools(), manifest, true)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, 2, store.clears)
}

func TestSync_MergesNearDuplicateIntents(t *testing.T) {
	store := newMemStore()
	// Both tools generate the identical intent text, which the memStore
	// scores as similarity 1.0.
	provider := &scriptedProvider{
		l1Texts: map[string]string{
			"send_email":   "deliver a message to a recipient",
			"send_message": "deliver a message to a recipient",
		},
		l2Text: "[GROUP]\nL2 Intent: deliver messages\nL1 Intents:\n- deliver a message to a recipient\n",
	}
	builder := newTestBuilder(t, store, provider)

	tools := []capability.Tool{
		{Server: "chat", Name: "send_message", Description: "Send a chat message"},
		{Server: "mail", Name: "send_email", Description: "Send an email", InputSchema: map[string]any{"type": "object"}},
	}
	manifest, err := capability.ParseManifest([]byte(`{"mcpServers": {"mail": {"command": "m"}, "chat": {"command": "c"}}}`))
	require.NoError(t, err)

	rebuilt, err := builder.Sync(context.Background(), tools, manifest, false)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	l1 := store.itemsOfType(intentstore.TypeL1)
	require.Len(t, l1, 1, "near-duplicate intents must merge into one record")
	merged, ok := intentstore.DecodeList(l1[0].Metadata[intentstore.KeyTools])
	require.True(t, ok)
	assert.Equal(t, []string{"tool::chat::send_message", "tool::mail::send_email"}, merged)
	// The record that came second contributed the schema.
	assert.Equal(t, `{"type":"object"}`, l1[0].Metadata[intentstore.KeySchema])
}

func TestSync_EmptyToolList(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{}
	builder := newTestBuilder(t, store, provider)

	rebuilt, err := builder.Sync(context.Background(), nil, mailManifest(t), false)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Empty(t, store.order)
	assert.NotEmpty(t, store.collMeta[intentstore.KeyConfigHash])
	assert.Zero(t, provider.calls)
}

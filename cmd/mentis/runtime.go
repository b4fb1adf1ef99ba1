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

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/mentis/pkg/capability"
	"github.com/kadirpekel/mentis/pkg/config"
	"github.com/kadirpekel/mentis/pkg/index"
	"github.com/kadirpekel/mentis/pkg/intentstore"
	"github.com/kadirpekel/mentis/pkg/kernel"
	"github.com/kadirpekel/mentis/pkg/llm"
	"github.com/kadirpekel/mentis/pkg/prompt"
)

// Runtime holds the wired collaborators for one CLI invocation.
type Runtime struct {
	Config   *config.Config
	Manifest *capability.Manifest
	Host     *capability.Host
	Builder  *index.Builder
	Kernel   *kernel.Kernel
}

// newRuntime builds the full stack: model client, intent store, capability
// host, index builder, and kernel. The caller owns Close.
func newRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	client, err := llm.NewClient(llm.Config{
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
		BaseURL:        cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	renderer, err := prompt.NewRenderer(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	store, err := intentstore.NewChromemStore(intentstore.Options{
		PersistDir: cfg.PersistDir,
		Collection: cfg.CollectionName,
		Embed:      client.Embed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open intent store: %w", err)
	}

	manifest, err := capability.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", cfg.ManifestPath, err)
	}

	host, err := capability.NewHost(ctx, manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to start capability servers: %w", err)
	}
	slog.Info("Capability host ready", "servers", len(host.Servers()), "tools", len(host.ListAllTools()))

	builder := index.NewBuilder(store, client, renderer, index.Options{
		InsertionThreshold: cfg.InsertionThreshold,
	})

	k := kernel.New(kernel.Config{
		MaxIterations:  cfg.MaxIterations,
		MatchThreshold: cfg.MatchThreshold,
		LLMTimeout:     cfg.LLMTimeout,
		ToolTimeout:    cfg.ToolTimeout,
	}, client, store, host, renderer)

	return &Runtime{
		Config:   cfg,
		Manifest: manifest,
		Host:     host,
		Builder:  builder,
		Kernel:   k,
	}, nil
}

// SyncIndex brings the intent index up to date with the manifest.
func (rt *Runtime) SyncIndex(ctx context.Context, force bool) error {
	rebuilt, err := rt.Builder.Sync(ctx, rt.Host.ListAllTools(), rt.Manifest, force)
	if err != nil {
		return fmt.Errorf("failed to sync intent index: %w", err)
	}
	if rebuilt {
		slog.Info("Intent index rebuilt")
	}
	return nil
}

// Close shuts down the capability servers.
func (rt *Runtime) Close() error {
	return rt.Host.Close()
}

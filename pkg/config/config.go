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

// Package config holds the validated process-wide settings.
//
// Values come from the environment, optionally seeded from .env files.
// Validation runs once at startup; out-of-range thresholds are fatal rather
// than silently clamped.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for unset environment variables.
const (
	DefaultModel              = "gpt-4o"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultPersistDir         = ".mentis/intentdb"
	DefaultCollectionName     = "intents"
	DefaultMatchThreshold     = 0.35
	DefaultInsertionThreshold = 0.92
	DefaultMaxIterations      = 10
	DefaultManifestPath       = "mcp_servers.json"
	DefaultLLMTimeout         = 120 * time.Second
	DefaultToolTimeout        = 60 * time.Second
)

// Config is the process-wide configuration.
type Config struct {
	// OpenAIAPIKey authenticates model and embedding calls.
	OpenAIAPIKey string
	// Model is the chat-completion model id.
	Model string
	// EmbeddingModel is the embedding model id.
	EmbeddingModel string
	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers.
	BaseURL string

	// PersistDir is where the intent collection lives on disk.
	PersistDir string
	// CollectionName is the vector collection name.
	CollectionName string

	// MatchThreshold filters task-time intent candidates, in (0, 1].
	MatchThreshold float32
	// InsertionThreshold controls index-build merging, in (0, 1].
	InsertionThreshold float32

	// MaxIterations is the default reason/act budget per task.
	MaxIterations int

	// TemplateDir optionally overrides the embedded prompt templates.
	TemplateDir string
	// ManifestPath locates the capability server manifest.
	ManifestPath string

	// LLMTimeout bounds each model call.
	LLMTimeout time.Duration
	// ToolTimeout bounds each tool call.
	ToolTimeout time.Duration
}

// Load reads configuration from the environment. .env.local and .env are
// loaded first when present; already-set environment variables always win,
// and .env.local wins over .env.
func Load(getenv func(string) string) (*Config, error) {
	// godotenv never overwrites variables that are already set.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	cfg := &Config{
		OpenAIAPIKey:   getenv("OPENAI_API_KEY"),
		Model:          stringOr(getenv("OPENAI_MODEL"), DefaultModel),
		EmbeddingModel: stringOr(getenv("OPENAI_EMBEDDING_MODEL"), DefaultEmbeddingModel),
		BaseURL:        getenv("OPENAI_BASE_URL"),
		PersistDir:     stringOr(getenv("INTENT_DB_PERSIST_DIR"), DefaultPersistDir),
		CollectionName: stringOr(getenv("INTENT_COLLECTION_NAME"), DefaultCollectionName),
		TemplateDir:    getenv("TEMPLATE_DIR"),
		ManifestPath:   stringOr(getenv("MCP_SERVERS_FILE"), DefaultManifestPath),
	}

	var err error
	if cfg.MatchThreshold, err = floatOr(getenv("INTENT_MATCH_THRESHOLD"), DefaultMatchThreshold); err != nil {
		return nil, fmt.Errorf("INTENT_MATCH_THRESHOLD: %w", err)
	}
	if cfg.InsertionThreshold, err = floatOr(getenv("INTENT_INSERTION_THRESHOLD"), DefaultInsertionThreshold); err != nil {
		return nil, fmt.Errorf("INTENT_INSERTION_THRESHOLD: %w", err)
	}
	if cfg.MaxIterations, err = intOr(getenv("DEFAULT_MAX_PROCESSES"), DefaultMaxIterations); err != nil {
		return nil, fmt.Errorf("DEFAULT_MAX_PROCESSES: %w", err)
	}
	if cfg.LLMTimeout, err = durationOr(getenv("LLM_TIMEOUT"), DefaultLLMTimeout); err != nil {
		return nil, fmt.Errorf("LLM_TIMEOUT: %w", err)
	}
	if cfg.ToolTimeout, err = durationOr(getenv("TOOL_TIMEOUT"), DefaultToolTimeout); err != nil {
		return nil, fmt.Errorf("TOOL_TIMEOUT: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. It does not check credentials, so that offline
// commands can run without an API key.
func (c *Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("intent match threshold %v is outside (0, 1]", c.MatchThreshold)
	}
	if c.InsertionThreshold <= 0 || c.InsertionThreshold > 1 {
		return fmt.Errorf("intent insertion threshold %v is outside (0, 1]", c.InsertionThreshold)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max iterations %d is negative", c.MaxIterations)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("collection name is empty")
	}
	return nil
}

// RequireCredentials errors unless an API key is configured.
func (c *Config) RequireCredentials() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	return nil
}

func stringOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func floatOr(value string, fallback float32) (float32, error) {
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", value)
	}
	return float32(parsed), nil
}

func intOr(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", value)
	}
	return parsed, nil
}

func durationOr(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	// Accept both bare seconds and Go duration syntax.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", value)
	}
	return parsed, nil
}

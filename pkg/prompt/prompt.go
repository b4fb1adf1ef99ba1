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

// Package prompt renders the fixed catalogue of LLM prompt templates.
//
// Templates ship embedded in the binary and can be overridden per name by
// dropping a <name>.tmpl file into the configured template root. The
// catalogue is resolved once at construction; rendering is pure template
// expansion with no side effects.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/kadirpekel/mentis/pkg/trace"
)

// Template names in the catalogue.
const (
	TemplateReasoning  = "reasoning"
	TemplateAction     = "action"
	TemplateL1Generate = "generate_l1_intent"
	TemplateL2Generate = "generate_l2_intent"
)

// ErrTemplateNotFound indicates a template name absent from both the
// embedded catalogue and the template root. Callers treat this as fatal.
var ErrTemplateNotFound = errors.New("template not found")

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Candidate is a retrieved intent presented in the action prompt.
type Candidate struct {
	ID         string
	Text       string
	Similarity float32
	Schema     string
}

// ReasoningData feeds the reasoning template.
type ReasoningData struct {
	Task      string
	Timestamp string
	Trace     []trace.Entry
}

// ActionData feeds the action template.
type ActionData struct {
	Task       string
	Intent     string
	Rationale  string
	Timestamp  string
	Trace      []trace.Entry
	Candidates []Candidate
}

// L1Data feeds the per-tool intent generation template.
type L1Data struct {
	ServerName  string
	ToolName    string
	Description string
	Schema      string
}

// L2Data feeds the per-server category generation template.
type L2Data struct {
	ServerName string
	L1Intents  []string
}

// Renderer holds the parsed template catalogue.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded templates and applies any overrides found
// under dir (may be empty). Unknown files in dir are ignored; a broken
// override fails construction.
func NewRenderer(dir string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}

	entries, err := defaultTemplates.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		data, err := defaultTemplates.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %q: %w", name, err)
		}
		if err := r.parse(name, string(data)); err != nil {
			return nil, err
		}
	}

	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
		if err != nil {
			return nil, fmt.Errorf("failed to scan template dir %q: %w", dir, err)
		}
		for _, path := range matches {
			name := strings.TrimSuffix(filepath.Base(path), ".tmpl")
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read template %q: %w", path, err)
			}
			if err := r.parse(name, string(data)); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *Renderer) parse(name, text string) error {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template %q: %w", name, err)
	}
	r.templates[name] = tmpl
	return nil
}

// Render expands the named template with the given data.
func (r *Renderer) Render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return sb.String(), nil
}

// Has reports whether the catalogue contains the named template.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

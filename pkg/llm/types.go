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

// Package llm abstracts the chat-completion provider used by the kernel.
//
// The kernel needs exactly two provider features: function calling with
// JSON-schema parameters, and a tool-choice hint (auto or required). The
// Provider interface captures that contract; openai.go implements it.
package llm

import (
	"context"
)

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolChoice hints how the model should treat the supplied tools.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceRequired forces the model to call exactly one tool.
	ToolChoiceRequired ToolChoice = "required"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// ToolDefinition declares a callable function to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a structured function call returned by the model.
// Arguments holds the decoded argument object; decoding is best-effort and
// runs malformed JSON through a repair pass first.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Request is a single chat-completion request.
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	Temperature *float32
}

// Response is the model's reply: free text, structured calls, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is a chat-completion endpoint with function calling.
type Provider interface {
	// Name returns the model identifier used for requests.
	Name() string

	// Generate performs one non-streaming completion.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

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

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(body map[string]any) map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(body)))
	}))
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestGenerate_TextResponse(t *testing.T) {
	srv := newTestServer(t, func(body map[string]any) map[string]any {
		assert.Equal(t, "gpt-4o", body["model"])
		return map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": "hello"},
				},
			},
		}
	})
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Empty(t, resp.ToolCalls)
}

func TestGenerate_ToolCallWithRequiredChoice(t *testing.T) {
	srv := newTestServer(t, func(body map[string]any) map[string]any {
		assert.Equal(t, "required", body["tool_choice"])
		tools, ok := body["tools"].([]any)
		require.True(t, ok)
		require.Len(t, tools, 1)

		return map[string]any{
			"id":     "chatcmpl-2",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"role": "assistant",
						"tool_calls": []any{
							map[string]any{
								"id":   "call-1",
								"type": "function",
								"function": map[string]any{
									"name":      "execute_tool",
									"arguments": `{"tool_uri":"tool::mail::send_email",}`,
								},
							},
						},
					},
				},
			},
		}
	})
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), &Request{
		Messages:   []Message{{Role: RoleUser, Content: "go"}},
		Tools:      []ToolDefinition{{Name: "execute_tool", Description: "run a tool"}},
		ToolChoice: ToolChoiceRequired,
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "execute_tool", resp.ToolCalls[0].Name)
	// The trailing comma above is repaired rather than rejected.
	assert.Equal(t, "tool::mail::send_email", resp.ToolCalls[0].Arguments["tool_uri"])
}

func TestGenerate_ZeroTemperatureIsSent(t *testing.T) {
	srv := newTestServer(t, func(body map[string]any) map[string]any {
		temp, ok := body["temperature"].(float64)
		require.True(t, ok, "temperature must be present for deterministic generation")
		assert.Less(t, temp, 1e-6)
		return map[string]any{
			"id":     "chatcmpl-3",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": "x"},
				},
			},
		}
	})
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	var zero float32
	_, err = client.Generate(context.Background(), &Request{
		Messages:    []Message{{Role: RoleUser, Content: "x"}},
		Temperature: &zero,
	})
	require.NoError(t, err)
}

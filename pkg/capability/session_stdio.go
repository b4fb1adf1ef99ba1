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

package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName      = "mentis"
	clientVersion   = "0.1.0"
	protocolVersion = "2024-11-05"
)

// stdioSession runs a capability server as a subprocess and speaks MCP over
// its stdin/stdout.
type stdioSession struct {
	server string
	tools  []Tool

	mu     sync.Mutex
	client *client.Client
	closed bool
}

// newStdioSession spawns the server, performs the MCP handshake, and fetches
// its tool list.
func newStdioSession(ctx context.Context, server string, cfg ServerConfig) (*stdioSession, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", server, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", server, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize %s: %w", server, err)
	}

	// A failed listing does not kill the session; the server just
	// contributes no tools this run.
	var tools []Tool
	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		slog.Warn("Failed to list tools", "server", server, "error", err)
	} else {
		tools = make([]Tool, 0, len(listResp.Tools))
		for _, mcpTool := range listResp.Tools {
			tools = append(tools, Tool{
				Server:      server,
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				InputSchema: convertInputSchema(mcpTool.InputSchema),
			})
		}
	}

	return &stdioSession{
		server: server,
		tools:  tools,
		client: mcpClient,
	}, nil
}

func (s *stdioSession) Server() string {
	return s.server
}

func (s *stdioSession) Tools() []Tool {
	return s.tools
}

func (s *stdioSession) Call(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	s.mu.Lock()
	mcpClient := s.client
	s.mu.Unlock()
	if mcpClient == nil {
		return nil, fmt.Errorf("session %s is closed", s.server)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call to %s failed: %w", FormatToolURI(s.server, tool), err)
	}
	return parseCallResult(resp), nil
}

func (s *stdioSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	mcpClient := s.client
	s.client = nil
	if mcpClient == nil {
		return nil
	}
	return mcpClient.Close()
}

// parseCallResult flattens an MCP call result into the common result map.
// Text content collapses to "result" (or "results" when multiple), errors
// surface under "error".
func parseCallResult(resp *mcp.CallToolResult) map[string]any {
	result := make(map[string]any)
	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		if len(texts) > 0 {
			result["error"] = texts[0]
		} else {
			result["error"] = "unknown error"
		}
		return result
	}

	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result
}

// convertInputSchema round-trips the typed schema through JSON to get a
// plain map.
func convertInputSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

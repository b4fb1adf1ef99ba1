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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/mentis/pkg/httpclient"
)

const sseReadTimeout = 30 * time.Second

// httpSession speaks MCP as JSON-RPC over HTTP. Streamable-http servers
// assign a session ID via the mcp-session-id header and may answer with an
// SSE stream instead of a plain JSON body.
type httpSession struct {
	server string
	url    string
	tools  []Tool
	client *httpclient.Client

	mu        sync.Mutex
	sessionID string
	requestID int
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// newHTTPSession performs the MCP handshake against the URL and fetches the
// tool list.
func newHTTPSession(ctx context.Context, server string, cfg ServerConfig) (*httpSession, error) {
	session := &httpSession{
		server: server,
		url:    cfg.URL,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}

	initResp, err := session.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", server, err)
	}
	if initResp.Error != nil {
		return nil, fmt.Errorf("failed to initialize %s: %s", server, initResp.Error.Message)
	}

	// A failed listing does not kill the session; the server just
	// contributes no tools this run.
	listResp, err := session.call(ctx, "tools/list", nil)
	switch {
	case err != nil:
		slog.Warn("Failed to list tools", "server", server, "error", err)
	case listResp.Error != nil:
		slog.Warn("Failed to list tools", "server", server, "error", listResp.Error.Message)
	default:
		tools, err := decodeToolList(server, listResp.Result)
		if err != nil {
			slog.Warn("Failed to list tools", "server", server, "error", err)
		} else {
			session.tools = tools
		}
	}

	return session, nil
}

func (s *httpSession) Server() string {
	return s.server
}

func (s *httpSession) Tools() []Tool {
	return s.tools
}

func (s *httpSession) Call(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	resp, err := s.call(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("call to %s failed: %w", FormatToolURI(s.server, tool), err)
	}
	if resp.Error != nil {
		return map[string]any{"error": resp.Error.Message}, nil
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return map[string]any{"result": resp.Result}, nil
	}
	return flattenHTTPResult(resultMap), nil
}

// Close is a no-op: HTTP sessions hold no persistent connection.
func (s *httpSession) Close() error {
	return nil
}

func (s *httpSession) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	s.mu.Lock()
	s.requestID++
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.requestID,
		Method:  method,
		Params:  params,
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.mu.Lock()
		s.sessionID = newSessionID
		s.mu.Unlock()
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(httpResp)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse extracts the first complete JSON-RPC message from an SSE
// stream.
func readSSEResponse(httpResp *http.Response) (*rpcResponse, error) {
	type outcome struct {
		response *rpcResponse
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		reader := bufio.NewReader(httpResp.Body)
		var data strings.Builder

		flush := func() *rpcResponse {
			if data.Len() == 0 {
				return nil
			}
			var resp rpcResponse
			if err := json.Unmarshal([]byte(data.String()), &resp); err == nil {
				return &resp
			}
			data.Reset()
			return nil
		}

		for {
			line, err := reader.ReadString('\n')
			trimmed := strings.TrimSpace(line)

			if trimmed == "" {
				if resp := flush(); resp != nil {
					done <- outcome{response: resp}
					return
				}
			} else if after, ok := strings.CutPrefix(trimmed, "data:"); ok {
				data.WriteString(strings.TrimSpace(after))
			}

			if err != nil {
				if resp := flush(); resp != nil {
					done <- outcome{response: resp}
					return
				}
				done <- outcome{err: fmt.Errorf("event stream ended without a complete message")}
				return
			}
		}
	}()

	select {
	case result := <-done:
		return result.response, result.err
	case <-time.After(sseReadTimeout):
		return nil, fmt.Errorf("timeout reading event stream after %v", sseReadTimeout)
	}
}

func decodeToolList(server string, result any) ([]Tool, error) {
	resultMap, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected tools/list result type %T", result)
	}
	rawTools, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing tools in tools/list result")
	}

	tools := make([]Tool, 0, len(rawTools))
	for _, raw := range rawTools {
		toolMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		if name == "" {
			continue
		}
		description, _ := toolMap["description"].(string)
		schema, _ := toolMap["inputSchema"].(map[string]any)
		tools = append(tools, Tool{
			Server:      server,
			Name:        name,
			Description: description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// flattenHTTPResult mirrors parseCallResult for the generic JSON form.
func flattenHTTPResult(resultMap map[string]any) map[string]any {
	result := make(map[string]any)
	var texts []string
	if content, ok := resultMap["content"].([]any); ok {
		for _, c := range content {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := cm["text"].(string); ok && cm["type"] == "text" {
				texts = append(texts, text)
			}
		}
	}

	if isError, _ := resultMap["isError"].(bool); isError {
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

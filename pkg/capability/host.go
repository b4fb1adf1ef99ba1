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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownServer reports a tool URI whose server has no live session.
var ErrUnknownServer = errors.New("unknown capability server")

// Dialer opens a session to one server.
type Dialer func(ctx context.Context, server string, cfg ServerConfig) (Session, error)

// defaultDialer picks the transport from the server config.
func defaultDialer(ctx context.Context, server string, cfg ServerConfig) (Session, error) {
	switch cfg.Kind() {
	case KindStdio:
		return newStdioSession(ctx, server, cfg)
	case KindHTTP:
		return newHTTPSession(ctx, server, cfg)
	default:
		return nil, fmt.Errorf("server %s declares neither a command nor a url", server)
	}
}

// Host owns the sessions to every running capability server.
//
// Startup degrades rather than fails: a server that cannot be reached is
// logged and skipped, and the remaining servers stay available. Shutdown
// closes sessions in reverse acquisition order.
type Host struct {
	mu       sync.Mutex
	sessions map[string]Session
	order    []string
	closed   bool
}

// HostOption customizes host construction.
type HostOption func(*hostOptions)

type hostOptions struct {
	dialer Dialer
}

// WithDialer replaces the transport-selecting dialer.
func WithDialer(dialer Dialer) HostOption {
	return func(o *hostOptions) {
		o.dialer = dialer
	}
}

// NewHost starts every enabled server in the manifest, in lexical name
// order for reproducible startup.
func NewHost(ctx context.Context, manifest *Manifest, opts ...HostOption) (*Host, error) {
	options := hostOptions{dialer: defaultDialer}
	for _, opt := range opts {
		opt(&options)
	}

	names := make([]string, 0, len(manifest.Servers))
	for name := range manifest.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	host := &Host{sessions: make(map[string]Session)}
	for _, name := range names {
		cfg := manifest.Servers[name]
		if !cfg.IsEnabled() {
			slog.Info("Skipping disabled capability server", "server", name)
			continue
		}
		if cfg.Kind() == KindInvalid {
			slog.Warn("Skipping capability server with no transport", "server", name)
			continue
		}

		session, err := options.dialer(ctx, name, cfg)
		if err != nil {
			slog.Warn("Capability server unavailable",
				"server", name,
				"transport", cfg.Kind().String(),
				"error", err)
			continue
		}

		host.sessions[name] = session
		host.order = append(host.order, name)
		slog.Info("Capability server started",
			"server", name,
			"transport", cfg.Kind().String(),
			"tools", len(session.Tools()))
	}

	return host, nil
}

// Servers returns the names of the live sessions in acquisition order.
func (h *Host) Servers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// ListAllTools returns every tool of every live session, grouped by server
// in acquisition order.
func (h *Host) ListAllTools() []Tool {
	h.mu.Lock()
	defer h.mu.Unlock()

	var tools []Tool
	for _, name := range h.order {
		tools = append(tools, h.sessions[name].Tools()...)
	}
	return tools
}

// CallTool routes a call to the session owning the URI's server.
func (h *Host) CallTool(ctx context.Context, uri ToolURI, args map[string]any) (map[string]any, error) {
	h.mu.Lock()
	session, ok := h.sessions[uri.Server]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, uri.Server)
	}
	return session.Call(ctx, uri.Tool, args)
}

// Close shuts every session down in reverse acquisition order. Calling it
// again is a no-op.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	for i := len(h.order) - 1; i >= 0; i-- {
		name := h.order[i]
		if err := h.sessions[name].Close(); err != nil {
			slog.Warn("Failed to close capability session", "server", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	h.sessions = map[string]Session{}
	h.order = nil
	return errors.Join(errs...)
}

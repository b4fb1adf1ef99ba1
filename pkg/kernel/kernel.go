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

// Package kernel drives the reason/act loop that executes a task.
//
// Each iteration has two phases. In the reason phase the model sees the
// task and the trace so far and either finishes (task_complete,
// task_blocked) or commits to a next step (do) phrased as a natural-language
// intent. In the act phase that intent is matched against the intent index
// and the model picks a concrete tool call from the candidates, refines the
// intent, or reports why it cannot act; acting always hands control back to
// the next reason phase. Every phase outcome, including errors, lands in the
// trace and consumes budget, so a misbehaving model or tool degrades to a
// blocked result instead of a hang.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/mentis/pkg/capability"
	"github.com/kadirpekel/mentis/pkg/intentstore"
	"github.com/kadirpekel/mentis/pkg/llm"
	"github.com/kadirpekel/mentis/pkg/prompt"
	"github.com/kadirpekel/mentis/pkg/trace"
)

// Status is the terminal state of a task run.
type Status string

const (
	// StatusComplete means the model declared the task done.
	StatusComplete Status = "COMPLETE"
	// StatusBlocked means the task ended without completion.
	StatusBlocked Status = "BLOCKED"
)

// Default loop parameters.
const (
	DefaultMaxIterations  = 10
	DefaultCandidateLimit = 5
	DefaultMatchThreshold = 0.35
	DefaultLLMTimeout     = 120 * time.Second
	DefaultToolTimeout    = 60 * time.Second
)

// maxResultLen bounds how much tool output is carried in a trace entry.
const maxResultLen = 4000

// Result is the outcome of one task run.
type Result struct {
	Status  Status
	Message string
	Trace   []trace.Entry
}

// ToolInvoker routes a tool call to its capability server.
type ToolInvoker interface {
	CallTool(ctx context.Context, uri capability.ToolURI, args map[string]any) (map[string]any, error)
}

// Config tunes the loop.
type Config struct {
	// MaxIterations caps reason/act rounds per task. Zero means no
	// budget at all: the task blocks immediately.
	MaxIterations int
	// CandidateLimit is how many index records each intent query
	// retrieves.
	CandidateLimit int
	// MatchThreshold drops candidates whose similarity is below it.
	MatchThreshold float32
	// LLMTimeout bounds each model call.
	LLMTimeout time.Duration
	// ToolTimeout bounds each tool call.
	ToolTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = DefaultCandidateLimit
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = DefaultMatchThreshold
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = DefaultLLMTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	return c
}

// Kernel executes tasks against a model, an intent index, and the
// capability host.
type Kernel struct {
	cfg      Config
	provider llm.Provider
	store    intentstore.Store
	invoker  ToolInvoker
	renderer *prompt.Renderer
	log      *trace.Log
}

// New wires a Kernel. MaxIterations is taken literally, including zero;
// callers wanting the default pass DefaultMaxIterations.
func New(cfg Config, provider llm.Provider, store intentstore.Store, invoker ToolInvoker, renderer *prompt.Renderer) *Kernel {
	return &Kernel{
		cfg:      cfg.withDefaults(),
		provider: provider,
		store:    store,
		invoker:  invoker,
		renderer: renderer,
		log:      trace.NewLog(),
	}
}

// RunTask executes one task to a terminal status. The trace is reset at the
// start and returned in full with the result.
func (k *Kernel) RunTask(ctx context.Context, task string) (*Result, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("task description is required")
	}

	k.log.Reset()
	slog.Info("Running task", "task", task, "maxIterations", k.cfg.MaxIterations)

	for i := 0; i < k.cfg.MaxIterations; i++ {
		if ctx.Err() != nil {
			return k.finish(StatusBlocked, "cancelled"), nil
		}

		step, done := k.reason(ctx, task)
		if done != nil {
			return done, nil
		}
		if step == nil {
			continue
		}

		if done := k.act(ctx, task, step); done != nil {
			return done, nil
		}
	}

	return k.finish(StatusBlocked, "max iterations reached"), nil
}

// finish snapshots the trace into a terminal result.
func (k *Kernel) finish(status Status, message string) *Result {
	slog.Info("Task finished", "status", status, "message", message)
	return &Result{
		Status:  status,
		Message: message,
		Trace:   k.log.Snapshot(),
	}
}

// reason runs the reason phase. It returns a step to act on, or a terminal
// result, or neither when the iteration was consumed without progress.
func (k *Kernel) reason(ctx context.Context, task string) (*doArgs, *Result) {
	rendered, err := k.renderer.Render(prompt.TemplateReasoning, prompt.ReasoningData{
		Task:      task,
		Timestamp: time.Now().Format(time.RFC3339),
		Trace:     k.log.Snapshot(),
	})
	if err != nil {
		// A broken template cannot heal mid-run.
		return nil, k.finish(StatusBlocked, fmt.Sprintf("reasoning prompt failed: %v", err))
	}

	resp, err := k.generate(ctx, rendered, reasoningTools(), llm.ToolChoiceAuto)
	if err != nil {
		k.log.Append("", "REASON", "error: "+err.Error())
		return nil, nil
	}

	if len(resp.ToolCalls) == 0 {
		k.log.Append(resp.Text, "NO_ACTION", "model reasoned without choosing a step")
		return nil, nil
	}

	call := resp.ToolCalls[0]
	switch call.Name {
	case toolTaskComplete:
		var args taskCompleteArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			k.log.Append(resp.Text, "TASK_COMPLETE", "error: "+err.Error())
			return nil, nil
		}
		k.log.Append(resp.Text, "TASK_COMPLETE", args.Message)
		return nil, k.finish(StatusComplete, args.Message)
	case toolTaskBlocked:
		var args taskBlockedArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			k.log.Append(resp.Text, "TASK_BLOCKED", "error: "+err.Error())
			return nil, nil
		}
		k.log.Append(resp.Text, "TASK_BLOCKED", args.Reason)
		return nil, k.finish(StatusBlocked, args.Reason)
	case toolDo:
		var args doArgs
		if err := decodeArgs(call.Arguments, &args); err != nil || strings.TrimSpace(args.Intent) == "" {
			k.log.Append(resp.Text, "DO", "error: unusable intent arguments")
			return nil, nil
		}
		return &args, nil
	default:
		k.log.Append(resp.Text, call.Name, "error: unknown function")
		return nil, nil
	}
}

// act resolves the step's intent against the index and lets the model pick
// a concrete action. Every outcome is traced and control returns to the
// next reason phase; a non-nil result occurs only when the action prompt
// itself cannot render.
func (k *Kernel) act(ctx context.Context, task string, step *doArgs) *Result {
	candidates, err := k.findCandidates(ctx, step.Intent)
	if err != nil {
		k.log.Append(step.Rationale, "QUERY_INTENT: "+step.Intent, "error: "+err.Error())
		return nil
	}
	if len(candidates) == 0 {
		k.log.Append(step.Rationale, "QUERY_INTENT: "+step.Intent, "no candidates above threshold")
		return nil
	}

	rendered, err := k.renderer.Render(prompt.TemplateAction, prompt.ActionData{
		Task:       task,
		Intent:     step.Intent,
		Rationale:  step.Rationale,
		Timestamp:  time.Now().Format(time.RFC3339),
		Trace:      k.log.Snapshot(),
		Candidates: candidates,
	})
	if err != nil {
		return k.finish(StatusBlocked, fmt.Sprintf("action prompt failed: %v", err))
	}

	resp, err := k.generate(ctx, rendered, actionTools(), llm.ToolChoiceRequired)
	if err != nil {
		k.log.Append(step.Rationale, "ACT", "error: "+err.Error())
		return nil
	}
	if len(resp.ToolCalls) == 0 {
		k.log.Append(step.Rationale, "ACT", "error: model made no function call")
		return nil
	}

	call := resp.ToolCalls[0]
	switch call.Name {
	case toolExecuteTool:
		k.executeTool(ctx, step, call.Arguments)
		return nil
	case toolRefineIntent:
		k.refineIntent(ctx, step, call.Arguments)
		return nil
	case toolInsufficientInfo:
		var args insufficientInformationArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			k.log.Append(step.Rationale, "INSUFFICIENT_INFORMATION", "error: "+err.Error())
			return nil
		}
		k.log.Append(step.Rationale, "INSUFFICIENT_INFORMATION", args.Missing)
		return nil
	case toolNoSuitableTool:
		var args noSuitableToolArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			k.log.Append(step.Rationale, "NO_SUITABLE_TOOL", "error: "+err.Error())
			return nil
		}
		k.log.Append(step.Rationale, "NO_SUITABLE_TOOL", args.Reason)
		return nil
	default:
		k.log.Append(step.Rationale, call.Name, "error: unknown function")
		return nil
	}
}

// findCandidates queries the index for narrow intents matching the step.
func (k *Kernel) findCandidates(ctx context.Context, intent string) ([]prompt.Candidate, error) {
	items, err := k.store.QueryByText(ctx, intent, k.cfg.CandidateLimit, map[string]string{
		intentstore.KeyType: intentstore.TypeL1,
	})
	if err != nil {
		return nil, err
	}

	var candidates []prompt.Candidate
	for _, item := range items {
		if item.Similarity < k.cfg.MatchThreshold {
			continue
		}
		candidates = append(candidates, prompt.Candidate{
			ID:         item.ID,
			Text:       item.Text,
			Similarity: item.Similarity,
			Schema:     item.Metadata[intentstore.KeySchema],
		})
	}
	return candidates, nil
}

// executeTool performs one tool call and records the outcome.
func (k *Kernel) executeTool(ctx context.Context, step *doArgs, rawArgs map[string]any) {
	var args executeToolArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		k.log.Append(step.Rationale, "EXECUTE_TOOL", "error: "+err.Error())
		return
	}

	uri, err := capability.ParseToolURI(args.ToolURI)
	if err != nil {
		k.log.Append(step.Rationale, "EXECUTE_TOOL: "+args.ToolURI, "error: "+err.Error())
		return
	}

	action := "EXECUTE_TOOL: " + uri.String()
	toolCtx, cancel := context.WithTimeout(ctx, k.cfg.ToolTimeout)
	defer cancel()

	result, err := k.invoker.CallTool(toolCtx, uri, args.Arguments)
	if err != nil {
		k.log.Append(step.Rationale, action, "error: "+err.Error())
		return
	}
	k.log.Append(step.Rationale, action, renderResult(result))
}

// refineIntent records a sharper phrasing against the rejected candidate.
func (k *Kernel) refineIntent(ctx context.Context, step *doArgs, rawArgs map[string]any) {
	var args refineIntentArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		k.log.Append(step.Rationale, "REFINE_INTENT", "error: "+err.Error())
		return
	}

	action := "REFINE_INTENT: " + args.IntentID
	item, found, err := k.store.GetByID(ctx, args.IntentID)
	if err != nil {
		k.log.Append(step.Rationale, action, "error: "+err.Error())
		return
	}
	if !found {
		k.log.Append(step.Rationale, action, "error: no such candidate")
		return
	}

	k.log.Append(step.Rationale, action,
		fmt.Sprintf("refined %q to %q", item.Text, args.RefinedIntent))
}

func (k *Kernel) generate(ctx context.Context, promptText string, tools []llm.ToolDefinition, choice llm.ToolChoice) (*llm.Response, error) {
	llmCtx, cancel := context.WithTimeout(ctx, k.cfg.LLMTimeout)
	defer cancel()

	return k.provider.Generate(llmCtx, &llm.Request{
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: promptText}},
		Tools:      tools,
		ToolChoice: choice,
	})
}

// renderResult serializes a tool result for the trace, bounded in size.
func renderResult(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	s := string(data)
	if len(s) > maxResultLen {
		s = s[:maxResultLen] + "...(truncated)"
	}
	return s
}

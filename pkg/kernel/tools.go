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

package kernel

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/mentis/pkg/llm"
)

// Function names the model can call.
const (
	toolTaskComplete     = "task_complete"
	toolTaskBlocked      = "task_blocked"
	toolDo               = "do"
	toolExecuteTool      = "execute_tool"
	toolRefineIntent     = "refine_intent"
	toolInsufficientInfo = "insufficient_information"
	toolNoSuitableTool   = "no_suitable_tool"
)

type taskCompleteArgs struct {
	Message string `json:"message" jsonschema:"description=Final answer or summary of what was accomplished"`
}

type taskBlockedArgs struct {
	Reason string `json:"reason" jsonschema:"description=Why the task cannot proceed"`
}

type doArgs struct {
	Intent    string `json:"intent" jsonschema:"description=Natural-language description of the next step to take"`
	Rationale string `json:"rationale,omitempty" jsonschema:"description=Why this step moves the task forward"`
}

type executeToolArgs struct {
	ToolURI   string         `json:"tool_uri" jsonschema:"description=Canonical tool address from the candidate list"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"description=Arguments matching the tool's input schema"`
}

type refineIntentArgs struct {
	IntentID      string `json:"intent_id" jsonschema:"description=ID of the candidate whose intent text was off"`
	RefinedIntent string `json:"refined_intent" jsonschema:"description=Sharper phrasing of the desired step"`
}

type insufficientInformationArgs struct {
	Missing string `json:"missing" jsonschema:"description=What information the task lacks for filling the tool arguments"`
}

type noSuitableToolArgs struct {
	Reason string `json:"reason" jsonschema:"description=Why none of the candidates can accomplish the intent"`
}

// reasoningTools are offered in the reason phase; the model may also answer
// in plain text, which consumes the iteration without acting.
func reasoningTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        toolTaskComplete,
			Description: "Declare the task finished and report the outcome.",
			Parameters:  reflectSchema(&taskCompleteArgs{}),
		},
		{
			Name:        toolTaskBlocked,
			Description: "Declare the task impossible to continue and explain why.",
			Parameters:  reflectSchema(&taskBlockedArgs{}),
		},
		{
			Name:        toolDo,
			Description: "Commit to one concrete next step, described as a natural-language intent.",
			Parameters:  reflectSchema(&doArgs{}),
		},
	}
}

// actionTools are offered in the act phase, where a call is required.
func actionTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        toolExecuteTool,
			Description: "Invoke one of the candidate tools with concrete arguments.",
			Parameters:  reflectSchema(&executeToolArgs{}),
		},
		{
			Name:        toolRefineIntent,
			Description: "Reject the candidates and restate the intent more precisely.",
			Parameters:  reflectSchema(&refineIntentArgs{}),
		},
		{
			Name:        toolInsufficientInfo,
			Description: "Report that the task lacks the information needed to fill the tool arguments.",
			Parameters:  reflectSchema(&insufficientInformationArgs{}),
		},
		{
			Name:        toolNoSuitableTool,
			Description: "Report that none of the candidates can accomplish the intent.",
			Parameters:  reflectSchema(&noSuitableToolArgs{}),
		},
	}
}

// reflectSchema derives an inline JSON schema for a function's argument
// struct.
func reflectSchema(v any) map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{"type": "object"}
	}
	return result
}

// decodeArgs maps a tool call's argument object onto a typed struct, keyed
// by json tag names.
func decodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("failed to build argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("arguments do not match the expected shape: %w", err)
	}
	return nil
}

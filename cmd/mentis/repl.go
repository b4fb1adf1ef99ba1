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
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kadirpekel/mentis/pkg/kernel"
)

// runInteractive reads tasks from stdin and runs them one at a time until
// the user quits or the context is cancelled.
func runInteractive(ctx context.Context, rt *Runtime, showTrace bool) error {
	rl, err := readline.New("task> ")
	if err != nil {
		return fmt.Errorf("failed to open prompt: %w", err)
	}
	defer rl.Close()

	fmt.Println("Interactive session. Type a task, or /help for commands.")

	var lastResult *kernel.Result
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if err != nil {
			// Ctrl-C on an empty line clears it, on its own ends the
			// session; Ctrl-D always ends it.
			if err == readline.ErrInterrupt {
				if len(line) > 0 {
					continue
				}
				return nil
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") || input == "quit" || input == "exit" {
			switch input {
			case "/quit", "/exit", "quit", "exit":
				return nil
			case "/showtrace":
				if lastResult == nil {
					fmt.Println("No task has run yet")
					continue
				}
				printTrace(lastResult)
				continue
			case "/servers":
				for _, name := range rt.Host.Servers() {
					fmt.Printf("  - %s\n", name)
				}
				continue
			case "/help":
				printHelp()
				continue
			default:
				fmt.Fprintf(os.Stderr, "Unknown command: %s\n", input)
				continue
			}
		}

		result, err := rt.Kernel.RunTask(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		lastResult = result
		printResult(result, showTrace)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /showtrace     print the last task's trace")
	fmt.Println("  /servers       list connected capability servers")
	fmt.Println("  /quit, /exit   end the session")
}

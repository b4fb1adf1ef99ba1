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

// Command mentis is the CLI for the mentis agent kernel.
//
// Usage:
//
//	mentis run "summarize the unread messages"
//	mentis run                # interactive session
//	mentis index --force
//	mentis validate
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/mentis/pkg/capability"
	"github.com/kadirpekel/mentis/pkg/config"
	"github.com/kadirpekel/mentis/pkg/kernel"
	"github.com/kadirpekel/mentis/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" default:"withargs" help:"Run a task, or start an interactive session when no task is given."`
	Index    IndexCmd    `cmd:"" help:"Build or rebuild the intent index."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration and the capability manifest."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Manifest  string `short:"m" help:"Path to the capability server manifest." type:"path"`
	LogLevel  string `env:"LOG_LEVEL" help:"Log level (debug, info, warn, error)." default:"warn"`
	LogFile   string `env:"LOG_FILE" help:"Log file path (empty = stderr)."`
	LogFormat string `env:"LOG_FORMAT" help:"Log format (simple or verbose)." default:"simple"`
	Verbose   bool   `short:"v" help:"Shorthand for --log-level=debug."`
}

// loadConfig loads settings from the environment and applies CLI overrides.
func (cli *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return nil, err
	}
	if cli.Manifest != "" {
		cfg.ManifestPath = cli.Manifest
	}
	return cfg, nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("mentis version %s\n", version)
	return nil
}

// RunCmd executes a task, or drops into an interactive session when no task
// argument is given.
type RunCmd struct {
	Task []string `arg:"" optional:"" help:"Task description. Omit for an interactive session."`

	MaxIterations int  `name:"max-iterations" default:"-1" help:"Override the reason/act budget (-1 = configured default)."`
	ShowTrace     bool `name:"show-trace" help:"Print the full trace after each task."`
	Rebuild       bool `help:"Force an intent index rebuild before running."`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	if c.MaxIterations >= 0 {
		cfg.MaxIterations = c.MaxIterations
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.SyncIndex(ctx, c.Rebuild); err != nil {
		return err
	}

	task := strings.TrimSpace(strings.Join(c.Task, " "))
	if task == "" {
		return runInteractive(ctx, rt, c.ShowTrace)
	}

	result, err := rt.Kernel.RunTask(ctx, task)
	if err != nil {
		return err
	}
	printResult(result, c.ShowTrace)
	if result.Status == kernel.StatusBlocked {
		os.Exit(1)
	}
	return nil
}

// IndexCmd forces an intent index rebuild.
type IndexCmd struct {
	Force bool `help:"Rebuild even when the manifest hash is unchanged."`
}

func (c *IndexCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	tools := rt.Host.ListAllTools()
	rebuilt, err := rt.Builder.Sync(ctx, tools, rt.Manifest, c.Force)
	if err != nil {
		return err
	}
	if rebuilt {
		fmt.Printf("Intent index rebuilt: %d tool(s) across %d server(s)\n",
			len(tools), len(rt.Host.Servers()))
	} else {
		fmt.Println("Intent index is already current")
	}
	return nil
}

// ValidateCmd checks configuration and the manifest without touching the
// model API, so it runs without credentials.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	fmt.Println("Configuration: OK")

	manifest, err := capability.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("manifest %s: %w", cfg.ManifestPath, err)
	}

	names := make([]string, 0, len(manifest.Servers))
	for name := range manifest.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Manifest %s: %d server(s)\n", cfg.ManifestPath, len(names))
	invalid := 0
	for _, name := range names {
		server := manifest.Servers[name]
		status := "enabled"
		if !server.IsEnabled() {
			status = "disabled"
		}
		kind := server.Kind()
		if kind == capability.KindInvalid {
			invalid++
		}
		fmt.Printf("  - %s: %s, %s\n", name, kind, status)
	}
	fmt.Printf("Manifest hash: %s\n", manifest.Hash())
	if invalid > 0 {
		return fmt.Errorf("%d server(s) have no usable transport", invalid)
	}
	return nil
}

func printResult(result *kernel.Result, showTrace bool) {
	fmt.Printf("\n[%s] %s\n", result.Status, result.Message)
	if showTrace {
		printTrace(result)
	}
}

func printTrace(result *kernel.Result) {
	fmt.Printf("\nTrace (%d entries):\n", len(result.Trace))
	for i, entry := range result.Trace {
		fmt.Printf("%2d. [%s] %s\n", i+1, entry.Timestamp.Format("15:04:05"), entry.Action)
		if entry.Reasoning != "" {
			fmt.Printf("    reasoning: %s\n", entry.Reasoning)
		}
		if entry.Result != "" {
			fmt.Printf("    result: %s\n", entry.Result)
		}
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("mentis"),
		kong.Description("mentis - intent-indexed agent kernel over MCP tools"),
		kong.UsageOnError(),
	)

	level := logger.ParseLevel(cli.LogLevel)
	if cli.Verbose {
		level = slog.LevelDebug
	}
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

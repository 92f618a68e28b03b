// File: cmd/run.go
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wayfarer-cli/internal/agent"
	"github.com/xkilldash9x/wayfarer-cli/internal/browser"
	"github.com/xkilldash9x/wayfarer-cli/internal/config"
	"github.com/xkilldash9x/wayfarer-cli/internal/llmclient"
	"github.com/xkilldash9x/wayfarer-cli/internal/observability"
	"github.com/xkilldash9x/wayfarer-cli/internal/vault"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Runs a task against the web and prints the answer",
		Long: `Runs one task, or a batch of tasks from a file, through the autonomous agent.

A task is a natural language instruction, e.g.:
  wayfarer run --url https://news.ycombinator.com "find the top story and summarize it"`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command line overrides config file and env values.
			if err := viper.BindPFlag("agent.include_screenshot", cmd.Flags().Lookup("screenshot")); err != nil {
				return err
			}
			return viper.BindPFlag("agent.max_steps", cmd.Flags().Lookup("max-steps"))
		},
		RunE: runTasks,
	}

	runCmd.Flags().String("url", "", "URL to start the task on")
	runCmd.Flags().String("tasks-file", "", "file with one task per line, run as a batch")
	runCmd.Flags().Int("parallel", 2, "maximum tasks run concurrently in batch mode")
	runCmd.Flags().Bool("screenshot", false, "attach page screenshots to the reasoning context")
	runCmd.Flags().Int("max-steps", 0, "override the step budget")
	runCmd.Flags().String("credentials-file", "", "JSON file with per-host login credentials")
	runCmd.Flags().String("output", "", "write the full run result as JSON to this file")

	return runCmd
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	cfg := appCfg

	startURL, _ := cmd.Flags().GetString("url")
	tasksFile, _ := cmd.Flags().GetString("tasks-file")
	parallel, _ := cmd.Flags().GetInt("parallel")
	credsFile, _ := cmd.Flags().GetString("credentials-file")
	output, _ := cmd.Flags().GetString("output")

	tasks := args
	if tasksFile != "" {
		loaded, err := loadTasks(tasksFile)
		if err != nil {
			return err
		}
		tasks = append(tasks, loaded...)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no task given: pass one as an argument or use --tasks-file")
	}

	engine, err := llmclient.NewEngine(cfg.Agent.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to create reasoning engine: %w", err)
	}

	var opts []agent.Option
	if credsFile != "" {
		v, err := loadVault(credsFile, logger)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithVault(v))
	}
	opts = append(opts, agent.WithStepCallback(func(status agent.ActionStatus) {
		logger.Info("Step result",
			zap.String("action", string(status.Input.Type)),
			zap.Bool("success", status.Success),
		)
	}))

	var mu sync.Mutex
	results := make([]*agent.AgentResponse, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, task := range tasks {
		g.Go(func() error {
			// Each task gets its own session and agent; the engine is shared.
			env := newEnvironment(cfg, logger)
			a, err := agent.New(cfg.Agent, env, engine, logger, opts...)
			if err != nil {
				return err
			}
			resp, err := a.Run(gctx, task, startURL)
			if err != nil {
				return fmt.Errorf("task %q failed: %w", task, err)
			}
			mu.Lock()
			results[i] = resp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, resp := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "[%d] success=%t\n%s\n", i, resp.Success, resp.Answer)
	}

	if output != "" {
		payload, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		if err := os.WriteFile(output, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write results to %q: %w", output, err)
		}
		logger.Info("Results written.", zap.String("path", output))
	}
	return nil
}

func newEnvironment(cfg *config.Config, logger *zap.Logger) *browser.Session {
	var opts []browser.SessionOption
	if cfg.Agent.IncludeScreenshot {
		opts = append(opts, browser.WithScreenshots(browser.NewChromeCapturer(cfg, logger)))
	}
	return browser.NewSession(cfg, logger, opts...)
}

// loadTasks reads one task per line, skipping blanks and # comments.
func loadTasks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks file: %w", err)
	}
	defer f.Close()

	var tasks []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}
	return tasks, nil
}

// loadVault reads a JSON credentials file keyed by host:
//
//	{"example.com": {"email": "...", "username": "...", "password": "..."}}
func loadVault(path string, logger *zap.Logger) (*vault.InMemoryVault, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var creds map[string]struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(payload, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	v := vault.NewInMemoryVault(logger)
	for host, cred := range creds {
		v.AddCredentials(host, vault.Credential{
			Email:    cred.Email,
			Username: cred.Username,
			Password: cred.Password,
		})
	}
	return v, nil
}

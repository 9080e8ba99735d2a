package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"maestro/pkg/models"
)

var (
	delegateMode        string
	delegateTimeout     time.Duration
	delegateContextFile string
)

var delegateCmd = &cobra.Command{
	Use:   "delegate <agent-type> <description>",
	Short: "Delegate a task to an agent",
	Long: `Delegate a task to the named agent type.

The agent resolves through the registry tiers; the task context (from
--context-file, YAML or JSON) is filtered to what that agent type is
allowed to see before dispatch.

The command exits with the delegation's return code:
  0 SUCCESS
  1 GENERAL_FAILURE
  2 TIMEOUT
  3 CONTEXT_FILTERING_ERROR
  4 AGENT_NOT_FOUND
  5 MESSAGE_BUS_ERROR

Examples:
  maestro delegate engineer "implement the retry loop"
  maestro delegate qa "verify the build" --mode subprocess --timeout 2m
  maestro delegate research "survey caches" --context-file ctx.yaml`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDelegate,
}

func init() {
	delegateCmd.Flags().StringVar(&delegateMode, "mode", "", "Execution mode: local or subprocess")
	delegateCmd.Flags().DurationVar(&delegateTimeout, "timeout", 0, "Delegation timeout (default from config)")
	delegateCmd.Flags().StringVar(&delegateContextFile, "context-file", "", "YAML/JSON file with the task context")
}

func runDelegate(cmd *cobra.Command, args []string) error {
	mode := models.ExecutionMode(delegateMode)
	if delegateMode != "" && !mode.Valid() {
		return fmt.Errorf("invalid mode %q: use local or subprocess", delegateMode)
	}

	taskContext, err := loadTaskContext(delegateContextFile)
	if err != nil {
		return err
	}

	a, err := buildApp(true)
	if err != nil {
		return err
	}

	resp := a.orch.Delegate(context.Background(), &models.TaskRequest{
		AgentType:   args[0],
		Description: strings.Join(args[1:], " "),
		Context:     taskContext,
		Timeout:     delegateTimeout,
		Mode:        mode,
	})
	printResponse(resp)

	a.close()
	os.Exit(int(resp.Code))
	return nil
}

func loadTaskContext(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}
	var ctx map[string]any
	if err := yaml.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("parse context file: %w", err)
	}
	return ctx, nil
}

func printResponse(resp *models.TaskResponse) {
	code := color.New(color.FgGreen)
	if resp.Code != models.CodeSuccess {
		code = color.New(color.FgRed)
	}

	fmt.Printf("Task %s (%s, %s mode)\n", resp.TaskID, resp.AgentType, resp.Mode)
	code.Printf("  %s", resp.Code)
	fmt.Printf(" in %s\n", resp.Duration.Round(time.Millisecond))

	if resp.Fallback != nil {
		color.New(color.FgYellow).Printf("  fell back from %s: %s (%s)\n",
			resp.Fallback.FromMode, resp.Fallback.OriginalError, resp.Fallback.OriginalCode)
	}
	if resp.Error != "" {
		fmt.Printf("  error: %s\n", resp.Error)
	}
	if len(resp.Payload) > 0 {
		if out, err := json.MarshalIndent(resp.Payload, "  ", "  "); err == nil {
			fmt.Printf("  %s\n", out)
		}
	}
}

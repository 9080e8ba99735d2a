package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Agent delegation and resource control",
	Long: `Maestro delegates tasks to named agents, either in-process handlers
or spawned subprocesses, while filtering the context each agent sees
and keeping memory usage inside configured ceilings.

Agents resolve through three tiers: project (.maestro/agents/), user
(~/.config/maestro/agents/), and built-in system agents. Project
definitions override user ones, which override the built-ins.

Every delegation reports one of six return codes; 'maestro delegate'
exits with that code.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(delegateCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"maestro/internal/registry"
	"maestro/pkg/models"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List resolvable agent types",
	Long: `List every agent type the registry currently resolves, with the
tier each one came from. A project or user definition shadows the
lower-tier one of the same name.`,
	RunE: runAgents,
}

var (
	agentTypeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	tierStyles     = map[models.Tier]lipgloss.Style{
		models.TierProject: lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		models.TierUser:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.TierSystem:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

func runAgents(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	reg := registry.New(registry.ProjectAgentsDir(cwd), registry.UserAgentsDir())
	if err := reg.Refresh(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	all := reg.All()
	fmt.Printf("%d agent types\n\n", len(all))
	for _, d := range all {
		tier := tierStyles[d.Tier].Render(string(d.Tier))
		line := fmt.Sprintf("  %s  [%s]", agentTypeStyle.Render(d.Type), tier)
		if d.SupportsSubprocess() {
			line += "  (subprocess)"
		}
		fmt.Println(line)
		if d.Description != "" {
			fmt.Printf("      %s\n", d.Description)
		}
		if len(d.Capabilities) > 0 {
			fmt.Printf("      capabilities: %s\n", strings.Join(d.Capabilities, ", "))
		}
	}
	return nil
}

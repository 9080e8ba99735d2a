package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"maestro/internal/config"
	"maestro/internal/pressure"
	"maestro/internal/state"
	"maestro/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show delegation metrics and memory state",
	Long: `Display persisted delegation outcomes and the current memory
pressure classification.

Shows:
  - Delegation counts per return code
  - Fallback count and per-agent totals
  - Recent delegations
  - System memory usage against the configured thresholds`,
	RunE: runStatus,
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := displayDelegations(); err != nil {
		return err
	}
	return displayMemory(cfg)
}

func displayDelegations() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Try project database first, then global.
	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No delegations recorded yet. Run 'maestro delegate <agent> <task>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	summary, err := db.Summarize()
	if err != nil {
		return fmt.Errorf("summarize delegations: %w", err)
	}

	fmt.Println(headerStyle.Render("Delegations"))
	fmt.Printf("  Total: %d\n", summary.Total)
	for _, code := range []models.ReturnCode{
		models.CodeSuccess,
		models.CodeGeneralFailure,
		models.CodeTimeout,
		models.CodeContextFilteringError,
		models.CodeAgentNotFound,
		models.CodeMessageBusError,
	} {
		n := summary.ByCode[code.String()]
		if n == 0 {
			continue
		}
		fmt.Printf("  %s: %d\n", code, n)
	}
	if summary.Fallbacks > 0 {
		fmt.Printf("  Subprocess fallbacks: %d\n", summary.Fallbacks)
	}
	for agent, n := range summary.ByAgent {
		fmt.Printf("  %s: %d\n", agent, n)
	}

	recent, err := db.RecentDelegations(5)
	if err != nil {
		return fmt.Errorf("list recent delegations: %w", err)
	}
	if len(recent) > 0 {
		fmt.Println()
		fmt.Println(headerStyle.Render("Recent"))
		for _, d := range recent {
			line := color.GreenString("%s", d.ReturnCode)
			if d.ReturnCode != models.CodeSuccess {
				line = color.RedString("%s", d.ReturnCode)
			}
			fmt.Printf("  %s  %s (%s, %s ago)\n",
				line, d.AgentType, d.Mode, formatDuration(time.Since(d.StartedAt)))
		}
	}
	fmt.Println()
	return nil
}

func displayMemory(cfg *config.Config) error {
	coord := pressure.NewCoordinator(pressure.Options{
		WarningPercent:  cfg.Pressure.WarningPercent,
		CriticalPercent: cfg.Pressure.CriticalPercent,
		Sampler:         &pressure.SystemSampler{},
	})
	if _, err := coord.Tick(); err != nil {
		return fmt.Errorf("sample memory: %w", err)
	}
	diag := coord.Diagnostics()

	usedPct := diag.Snapshot.UsedPercent()
	level := color.GreenString(diag.LevelName)
	switch diag.Level {
	case models.PressureWarning:
		level = color.YellowString(diag.LevelName)
	case models.PressureCritical:
		level = color.RedString(diag.LevelName)
	}

	fmt.Println(headerStyle.Render("Memory"))
	fmt.Printf("  System: %.1f%% used (%s of %s)\n",
		usedPct,
		formatBytes(diag.Snapshot.SystemTotalBytes-diag.Snapshot.SystemAvailableBytes),
		formatBytes(diag.Snapshot.SystemTotalBytes))
	fmt.Printf("  Process RSS: %s\n", formatBytes(diag.Snapshot.ProcessRSSBytes))
	fmt.Printf("  Pressure: %s (warning %.0f%%, critical %.0f%%)\n",
		level, cfg.Pressure.WarningPercent, cfg.Pressure.CriticalPercent)
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n uint64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.1f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

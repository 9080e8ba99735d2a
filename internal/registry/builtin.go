package registry

import (
	"time"

	"maestro/pkg/models"
)

// builtinAgents are the system-tier descriptors compiled into the binary.
// Any of them can be shadowed by a user- or project-tier descriptor file
// with the same type name.
var builtinAgents = []models.AgentDescriptor{
	{
		Type:         "documentation",
		Description:  "Creates and maintains project documentation",
		Capabilities: []string{"docs", "changelog", "readme"},
	},
	{
		Type:         "qa",
		Description:  "Quality assurance, testing, and validation",
		Capabilities: []string{"test", "validate", "coverage"},
	},
	{
		Type:         "engineer",
		Description:  "Code implementation and technical problem solving",
		Capabilities: []string{"implement", "refactor", "debug"},
	},
	{
		Type:         "research",
		Description:  "Investigation, analysis, and information gathering",
		Capabilities: []string{"investigate", "analyze"},
	},
	{
		Type:         "version_control",
		Description:  "Git operations and version management",
		Capabilities: []string{"branch", "merge", "tag"},
	},
	{
		Type:         "ticketing",
		Description:  "Ticket lifecycle and issue tracking",
		Capabilities: []string{"create_ticket", "update_ticket"},
	},
	{
		Type:         "ops",
		Description:  "Deployment, operations, and infrastructure",
		Capabilities: []string{"deploy", "monitor"},
	},
	{
		Type:         "security",
		Description:  "Security analysis and vulnerability assessment",
		Capabilities: []string{"audit", "scan"},
	},
	{
		Type:         "data_engineer",
		Description:  "Data management and API integrations",
		Capabilities: []string{"schema", "pipeline"},
	},
}

// builtinIndex returns a fresh index seeded with the system tier.
func builtinIndex() map[string]*models.AgentDescriptor {
	now := time.Now()
	index := make(map[string]*models.AgentDescriptor, len(builtinAgents))
	for i := range builtinAgents {
		desc := builtinAgents[i]
		desc.Tier = models.TierSystem
		desc.Source = "builtin"
		desc.LoadedAt = now
		index[desc.Type] = &desc
	}
	return index
}

package contextmgr

// builtinFilters are the default per-agent-type rule sets. They mirror
// the nine core agent types the registry ships with.
var builtinFilters = []Filter{
	{
		AgentType:    "documentation",
		Sections:     []string{"project_overview", "current_task", "active_tickets"},
		FilePatterns: []string{"*.md", "*.rst", "*.txt", "docs/*"},
	},
	{
		AgentType:    "qa",
		Sections:     []string{"test_results", "current_task", "technical_specs"},
		FilePatterns: []string{"*_test.*", "test_*.*", "tests/*"},
	},
	{
		AgentType:       "engineer",
		Sections:        []string{"current_task", "technical_specs", "project_overview"},
		FilePatterns:    []string{"*.go", "*.py", "*.js", "*.ts", "*.rs", "src/*"},
		ExcludePatterns: []string{"*_test.*", "test_*.*", "tests/*"},
	},
	{
		AgentType:    "research",
		Sections:     []string{"current_task", "project_overview", "technical_specs"},
		FilePatterns: []string{"research/*", "*.md"},
	},
	{
		AgentType:    "version_control",
		Sections:     []string{"git_status", "current_task"},
		FilePatterns: []string{".git*", "*.gitignore"},
	},
	{
		AgentType:    "ticketing",
		Sections:     []string{"active_tickets", "current_task"},
		FilePatterns: []string{"tickets/*", "*.ticket"},
	},
	{
		AgentType:    "ops",
		Sections:     []string{"deployment_config", "current_task"},
		FilePatterns: []string{"deploy/*", "*.yml", "*.yaml", "Dockerfile*"},
	},
	{
		AgentType:       "security",
		Sections:        []string{"security_policies", "current_task"},
		FilePatterns:    []string{".env*", "*.pem", "*.key", "secrets/*"},
		ExcludePatterns: []string{"*.example"},
	},
	{
		AgentType:    "data_engineer",
		Sections:     []string{"database_schema", "current_task", "technical_specs"},
		FilePatterns: []string{"migrations/*", "*.sql"},
	},
}

package contextmgr

import (
	"testing"
)

func sampleContext() map[string]any {
	return map[string]any{
		"files": map[string]any{
			"README.md":                  "# Project Documentation",
			"CHANGELOG.md":               "# Changelog",
			"src/main.go":                "package main",
			"tests/parser_test.py":       "def test_parse(): pass",
			"docs/api.md":                "# API Documentation",
			".env":                       "SECRET_KEY=abc123",
			".env.example":               "SECRET_KEY=your_key_here",
			"migrations/001_initial.sql": "CREATE TABLE users;",
			"deploy/docker-compose.yml":  "version: '3'",
		},
		"current_task":      "Update documentation and add tests",
		"project_overview":  "A demonstration project",
		"test_results":      map[string]any{"passed": 10, "failed": 0},
		"git_status":        "On branch main, nothing to commit",
		"active_tickets":    []string{"TASK-001", "TASK-002"},
		"technical_specs":   "Go 1.24",
		"deployment_config": map[string]any{"environment": "production"},
		"security_policies": "All secrets in env vars",
		"database_schema":   map[string]any{"tables": []string{"users"}},
	}
}

func TestBuiltinFilterCount(t *testing.T) {
	m := NewManager()
	if got := m.FilterCount(); got != 9 {
		t.Errorf("expected 9 built-in filters, got %d", got)
	}
}

func TestFilterDocumentationAgent(t *testing.T) {
	m := NewManager()
	filtered := m.FilterContextForAgent("documentation", sampleContext())

	files, ok := filtered["files"].(map[string]any)
	if !ok {
		t.Fatal("expected files section")
	}
	for _, want := range []string{"README.md", "CHANGELOG.md", "docs/api.md"} {
		if _, ok := files[want]; !ok {
			t.Errorf("expected %s in documentation view", want)
		}
	}
	if _, ok := files["src/main.go"]; ok {
		t.Error("expected code files to be dropped")
	}

	if _, ok := filtered["project_overview"]; !ok {
		t.Error("expected project_overview section")
	}
	if _, ok := filtered["test_results"]; ok {
		t.Error("expected test_results to be dropped")
	}
}

func TestFilterQAAgent(t *testing.T) {
	m := NewManager()
	filtered := m.FilterContextForAgent("qa", sampleContext())

	files := filtered["files"].(map[string]any)
	if _, ok := files["tests/parser_test.py"]; !ok {
		t.Error("expected test files in qa view")
	}
	if _, ok := files["README.md"]; ok {
		t.Error("expected docs to be dropped from qa view")
	}
	if _, ok := filtered["test_results"]; !ok {
		t.Error("expected test_results section")
	}
}

func TestFilterEngineerExcludesTests(t *testing.T) {
	m := NewManager()
	filtered := m.FilterContextForAgent("engineer", sampleContext())

	files := filtered["files"].(map[string]any)
	if _, ok := files["src/main.go"]; !ok {
		t.Error("expected source files in engineer view")
	}
	if _, ok := files["tests/parser_test.py"]; ok {
		t.Error("expected test files excluded from engineer view")
	}
	if _, ok := filtered["technical_specs"]; !ok {
		t.Error("expected technical_specs section")
	}
}

func TestFilterSecurityExcludesExamples(t *testing.T) {
	m := NewManager()
	filtered := m.FilterContextForAgent("security", sampleContext())

	files := filtered["files"].(map[string]any)
	if _, ok := files[".env"]; !ok {
		t.Error("expected .env in security view")
	}
	if _, ok := files[".env.example"]; ok {
		t.Error("expected .env.example excluded")
	}
	if _, ok := filtered["security_policies"]; !ok {
		t.Error("expected security_policies section")
	}
}

func TestFilterReducesSize(t *testing.T) {
	m := NewManager()
	full := sampleContext()

	for _, agentType := range []string{"documentation", "qa", "engineer", "security", "ops", "data_engineer"} {
		filtered := m.FilterContextForAgent(agentType, full)
		if SizeEstimate(filtered) >= SizeEstimate(full) {
			t.Errorf("expected %s view smaller than full context", agentType)
		}
	}
}

func TestFilterUnknownAgentPassesThrough(t *testing.T) {
	m := NewManager()
	full := sampleContext()

	filtered := m.FilterContextForAgent("unknown_type", full)

	if len(filtered) != len(full) {
		t.Errorf("expected full pass-through, got %d of %d sections", len(filtered), len(full))
	}
	if _, ok := filtered["files"]; !ok {
		t.Error("expected files preserved for unknown agent type")
	}
}

func TestSharedContextAppended(t *testing.T) {
	m := NewManager()

	m.UpdateSharedContext("doc_agent_001", map[string]any{
		"latest_version": "1.0.0",
	})

	filtered := m.FilterContextForAgent("engineer", sampleContext())

	shared, ok := filtered["shared_context"].(map[string]any)
	if !ok {
		t.Fatal("expected shared_context appended")
	}
	entry, ok := shared["doc_agent_001_latest_version"].(map[string]any)
	if !ok {
		t.Fatal("expected namespaced shared entry")
	}
	if entry["value"] != "1.0.0" {
		t.Errorf("expected shared value 1.0.0, got %v", entry["value"])
	}
	if entry["agent_id"] != "doc_agent_001" {
		t.Errorf("expected writer agent id, got %v", entry["agent_id"])
	}
}

func TestSharedContextAlsoForUnknownAgents(t *testing.T) {
	m := NewManager()
	m.UpdateSharedContext("a1", map[string]any{"k": "v"})

	filtered := m.FilterContextForAgent("unknown_type", sampleContext())
	if _, ok := filtered["shared_context"]; !ok {
		t.Error("expected shared context appended to pass-through view")
	}
}

func TestRegisterCustomFilter(t *testing.T) {
	m := NewManager()
	m.RegisterCustomFilter("auditor", Filter{
		Sections:     []string{"security_policies"},
		FilePatterns: []string{"*.log"},
	})

	if m.FilterCount() != 10 {
		t.Errorf("expected 10 filters, got %d", m.FilterCount())
	}

	filtered := m.FilterContextForAgent("auditor", sampleContext())
	if _, ok := filtered["security_policies"]; !ok {
		t.Error("expected custom filter to apply")
	}
	if _, ok := filtered["current_task"]; ok {
		t.Error("expected sections outside the custom allow-list to drop")
	}
}

func TestInteractionHistory(t *testing.T) {
	m := NewManager()

	for i := 0; i < 5; i++ {
		m.RecordInteraction("qa_agent_001", "qa", 10000+i*1000, 3000+i*100)
	}

	recent := m.AgentHistory("qa_agent_001", 3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recent))
	}
	if recent[2].InputSize != 14000 {
		t.Errorf("expected newest record last, got input size %d", recent[2].InputSize)
	}

	if got := m.AgentHistory("nobody", 3); len(got) != 0 {
		t.Errorf("expected empty history, got %d records", len(got))
	}
}

func TestFilterStatistics(t *testing.T) {
	m := NewManager()

	m.RecordInteraction("doc_1", "documentation", 10000, 3000)
	m.RecordInteraction("doc_2", "documentation", 12000, 3600)
	m.RecordInteraction("qa_1", "qa", 8000, 2000)

	stats := m.FilterStatistics()
	if stats.RegisteredFilters != 9 {
		t.Errorf("expected 9 filters, got %d", stats.RegisteredFilters)
	}
	if stats.TotalInteractions != 3 {
		t.Errorf("expected 3 interactions, got %d", stats.TotalInteractions)
	}
	if stats.AgentsTracked != 3 {
		t.Errorf("expected 3 agents, got %d", stats.AgentsTracked)
	}

	docReduction := stats.AvgReductionByType["documentation"]
	if docReduction < 69 || docReduction > 71 {
		t.Errorf("expected documentation reduction near 70%%, got %v", docReduction)
	}
	if _, ok := stats.AvgReductionByType["qa"]; !ok {
		t.Error("expected qa reduction tracked")
	}
}

func TestSizeEstimate(t *testing.T) {
	if got := SizeEstimate("12345678"); got != 2 {
		t.Errorf("expected 2 tokens for 8 chars, got %d", got)
	}
	if got := SizeEstimate(map[string]any{"k": "v"}); got <= 0 {
		t.Errorf("expected positive estimate for map, got %d", got)
	}
}

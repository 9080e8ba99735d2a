package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"maestro/pkg/models"
)

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestResolveBuiltin(t *testing.T) {
	r := New("", "")

	desc, err := r.Resolve("engineer")
	if err != nil {
		t.Fatalf("Resolve(engineer) failed: %v", err)
	}
	if desc.Tier != models.TierSystem {
		t.Errorf("expected system tier, got %s", desc.Tier)
	}
	if desc.Source != "builtin" {
		t.Errorf("expected builtin source, got %s", desc.Source)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := New("", "")

	_, err := r.Resolve("unknown_agent")
	if err == nil {
		t.Fatal("expected error for unknown agent type")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectTierPrecedence(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "agents")
	userDir := filepath.Join(t.TempDir(), "agents")

	// Same agent type at every tier; project must win regardless of
	// registration order.
	writeDescriptor(t, userDir, "engineer.yaml", "type: engineer\ndescription: user engineer\n")
	writeDescriptor(t, projectDir, "engineer.yaml", "type: engineer\ndescription: project engineer\n")

	r := New(projectDir, userDir)
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	desc, err := r.Resolve("engineer")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if desc.Tier != models.TierProject {
		t.Errorf("expected project tier, got %s", desc.Tier)
	}
	if desc.Description != "project engineer" {
		t.Errorf("expected project descriptor, got %q", desc.Description)
	}
}

func TestUserTierOverridesSystem(t *testing.T) {
	userDir := filepath.Join(t.TempDir(), "agents")
	writeDescriptor(t, userDir, "qa.yml", "description: custom qa\ncapabilities: [fuzz]\n")

	r := New("", userDir)
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	desc, err := r.Resolve("qa")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if desc.Tier != models.TierUser {
		t.Errorf("expected user tier, got %s", desc.Tier)
	}
	// Type defaults to the file base name when omitted.
	if desc.Type != "qa" {
		t.Errorf("expected type qa, got %q", desc.Type)
	}
}

func TestRefreshStableResolution(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "agents")
	writeDescriptor(t, projectDir, "deploy.yaml", "type: deploy\ncommand: [run-deploy]\n")

	r := New(projectDir, "")
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	before, err := r.Resolve("deploy")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Mutating the filesystem without Refresh must not change resolution.
	if err := os.Remove(filepath.Join(projectDir, "deploy.yaml")); err != nil {
		t.Fatalf("remove descriptor: %v", err)
	}

	after, err := r.Resolve("deploy")
	if err != nil {
		t.Fatalf("Resolve after file removal failed: %v", err)
	}
	if after != before {
		t.Error("expected identical descriptor between refreshes")
	}

	// After Refresh the removal takes effect.
	if err := r.Refresh(); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if _, err := r.Resolve("deploy"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after refresh, got %v", err)
	}
}

func TestRefreshSkipsMalformedFiles(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "agents")
	writeDescriptor(t, projectDir, "good.yaml", "type: good\n")
	writeDescriptor(t, projectDir, "bad.yaml", "type: [not: valid: yaml\n")
	writeDescriptor(t, projectDir, "notes.txt", "ignored entirely")

	r := New(projectDir, "")
	err := r.Refresh()
	if err == nil {
		t.Fatal("expected error reporting the malformed file")
	}

	// The good descriptor still loaded.
	if _, resolveErr := r.Resolve("good"); resolveErr != nil {
		t.Errorf("expected good descriptor to resolve, got %v", resolveErr)
	}
	if _, resolveErr := r.Resolve("notes"); !errors.Is(resolveErr, ErrNotFound) {
		t.Error("expected non-descriptor files to be ignored")
	}
}

func TestAllSorted(t *testing.T) {
	r := New("", "")
	all := r.All()

	if len(all) != len(builtinAgents) {
		t.Fatalf("expected %d builtin agents, got %d", len(builtinAgents), len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Type >= all[i].Type {
			t.Errorf("expected sorted order, got %q before %q", all[i-1].Type, all[i].Type)
		}
	}
}

func TestSupportsSubprocess(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "agents")
	writeDescriptor(t, projectDir, "runner.yaml", "type: runner\ncommand: [/usr/bin/env, agent-runner]\n")

	r := New(projectDir, "")
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	desc, err := r.Resolve("runner")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !desc.SupportsSubprocess() {
		t.Error("expected runner to support subprocess mode")
	}

	builtin, _ := r.Resolve("engineer")
	if builtin.SupportsSubprocess() {
		t.Error("expected builtin engineer to have no command")
	}
}

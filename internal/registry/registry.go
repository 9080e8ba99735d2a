// Package registry resolves agent-type names to descriptors using a
// three-tier hierarchy: project overrides user overrides system.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"maestro/pkg/models"
)

// ErrNotFound is returned when no tier defines the requested agent type.
var ErrNotFound = errors.New("agent type not found")

// descriptor file extensions recognized in tier directories.
var descriptorExts = map[string]bool{
	".yaml": true,
	".yml":  true,
}

// Registry maps agent-type names to descriptors. Resolution reads an
// immutable index built by Refresh; it never touches the filesystem.
type Registry struct {
	// projectDir holds project-tier descriptor files.
	projectDir string
	// userDir holds user-tier descriptor files.
	userDir string

	// index is the last-built name -> descriptor mapping.
	index map[string]*models.AgentDescriptor
	// builtAt is when the index was last rebuilt.
	builtAt time.Time
	// mu protects index and builtAt.
	mu sync.RWMutex
}

// New creates a Registry reading project-tier descriptors from projectDir
// and user-tier descriptors from userDir. Either may be empty to disable
// that tier. The initial index contains only the built-in system tier;
// call Refresh to load the directory tiers.
func New(projectDir, userDir string) *Registry {
	r := &Registry{
		projectDir: projectDir,
		userDir:    userDir,
		index:      builtinIndex(),
		builtAt:    time.Now(),
	}
	return r
}

// ProjectAgentsDir returns the conventional project-tier directory.
func ProjectAgentsDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".maestro", "agents")
}

// UserAgentsDir returns the XDG user-tier directory.
func UserAgentsDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "maestro", "agents")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "maestro", "agents")
}

// Resolve returns the active descriptor for the agent type.
// Returns ErrNotFound if no tier defines it.
func (r *Registry) Resolve(agentType string) (*models.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.index[agentType]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", agentType, ErrNotFound)
	}
	return desc, nil
}

// All returns the active descriptors sorted by type name.
func (r *Registry) All() []*models.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AgentDescriptor, 0, len(r.index))
	for _, d := range r.index {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Count returns the number of resolvable agent types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// BuiltAt returns when the index was last rebuilt.
func (r *Registry) BuiltAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtAt
}

// Refresh rebuilds the descriptor index from the three tier sources.
// Lower-precedence tiers are loaded first so higher tiers overwrite them.
// A tier directory that does not exist is skipped, not an error; a
// malformed descriptor file is skipped and reported in the returned
// error list without aborting the rebuild.
func (r *Registry) Refresh() error {
	index := builtinIndex()
	var loadErrs []error

	// user tier overrides system
	if r.userDir != "" {
		if err := loadTierDir(index, r.userDir, models.TierUser); err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// project tier overrides user
	if r.projectDir != "" {
		if err := loadTierDir(index, r.projectDir, models.TierProject); err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	r.mu.Lock()
	r.index = index
	r.builtAt = time.Now()
	r.mu.Unlock()

	return errors.Join(loadErrs...)
}

// loadTierDir parses every descriptor file in dir into the index at the
// given tier, overwriting any lower-tier entries for the same type name.
func loadTierDir(index map[string]*models.AgentDescriptor, dir string, tier models.Tier) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s tier dir: %w", tier, err)
	}

	var parseErrs []error
	for _, entry := range entries {
		if entry.IsDir() || !descriptorExts[filepath.Ext(entry.Name())] {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		desc, err := parseDescriptorFile(path)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		desc.Tier = tier

		index[desc.Type] = desc
	}

	return errors.Join(parseErrs...)
}

// parseDescriptorFile reads one YAML descriptor. The agent type defaults
// to the file's base name when the file omits it.
func parseDescriptorFile(path string) (*models.AgentDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	desc := &models.AgentDescriptor{}
	if err := yaml.Unmarshal(data, desc); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}

	if desc.Type == "" {
		base := filepath.Base(path)
		desc.Type = strings.TrimSuffix(base, filepath.Ext(base))
	}
	desc.Source = path
	desc.LoadedAt = time.Now()

	return desc, nil
}

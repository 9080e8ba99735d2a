package models

import "time"

// AgentDescriptor describes a resolvable agent type.
// For a given type name, exactly one descriptor is active at a time:
// the one from the highest-precedence tier that defines it.
type AgentDescriptor struct {
	// Type is the agent-type name used to resolve this descriptor.
	Type string `json:"type" yaml:"type"`
	// Tier is the tier this descriptor was loaded from.
	Tier Tier `json:"tier" yaml:"-"`
	// Source is where the descriptor was loaded from (file path, or
	// "builtin" for system-tier descriptors).
	Source string `json:"source" yaml:"-"`
	// Description is a short human-readable summary of the agent.
	Description string `json:"description,omitempty" yaml:"description"`
	// Capabilities lists what the agent declares it can do.
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities"`
	// Command is the subprocess command line used in subprocess mode.
	// Empty for agents that only run as in-process handlers.
	Command []string `json:"command,omitempty" yaml:"command"`
	// LoadedAt is when the descriptor was indexed.
	LoadedAt time.Time `json:"loaded_at" yaml:"-"`
}

// SupportsSubprocess returns true if the descriptor declares a command line.
func (d *AgentDescriptor) SupportsSubprocess() bool {
	return len(d.Command) > 0
}

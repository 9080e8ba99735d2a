package models

// Tier represents the precedence tier an agent descriptor was defined at.
type Tier string

const (
	// TierProject is the highest-precedence tier, defined inside the project.
	TierProject Tier = "project"
	// TierUser is the per-user tier, defined in the user's config directory.
	TierUser Tier = "user"
	// TierSystem is the lowest-precedence tier, built into the binary.
	TierSystem Tier = "system"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierProject, TierUser, TierSystem:
		return true
	default:
		return false
	}
}

// Precedence returns the tier's rank; lower values override higher ones.
func (t Tier) Precedence() int {
	switch t {
	case TierProject:
		return 0
	case TierUser:
		return 1
	case TierSystem:
		return 2
	default:
		return 3
	}
}

// Overrides returns true if descriptors at tier t shadow descriptors at other.
func (t Tier) Overrides(other Tier) bool {
	return t.Precedence() < other.Precedence()
}

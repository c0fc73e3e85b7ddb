package capabilities

// Capability is a single action a role may perform on a document.
type Capability string

const (
	CapabilityView    Capability = "view"
	CapabilityEdit    Capability = "edit"
	CapabilityComment Capability = "comment"
	CapabilityResolve Capability = "resolve"
	CapabilityPromote Capability = "promote"
	CapabilityDiscard Capability = "discard"
	CapabilityInvite  Capability = "invite"
)

// RoleCapabilities is one role entry in the role table.
type RoleCapabilities struct {
	// Role identifier (set during YAML unmarshaling)
	Name string `yaml:"-" json:"name"`

	DisplayName  string       `yaml:"display_name" json:"display_name"`
	Description  string       `yaml:"description" json:"description"`
	Capabilities []Capability `yaml:"capabilities" json:"capabilities"`
}

// RoleTable is the on-disk layout of config/roles.yaml.
type RoleTable struct {
	Roles map[string]RoleCapabilities `yaml:"roles"`
}

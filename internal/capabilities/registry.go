package capabilities

import (
	"embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry maps roles to the capabilities they grant.
type Registry struct {
	roles map[string]*RoleCapabilities
	mu    sync.RWMutex
}

// NewRegistry creates a registry from the embedded role table.
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/roles.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read roles.yaml: %w", err)
	}
	return NewRegistryFromYAML(data)
}

// NewRegistryFromYAML builds a registry from an arbitrary role table.
func NewRegistryFromYAML(data []byte) (*Registry, error) {
	var table RoleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role table: %w", err)
	}
	if len(table.Roles) == 0 {
		return nil, fmt.Errorf("role table defines no roles")
	}

	r := &Registry{roles: make(map[string]*RoleCapabilities, len(table.Roles))}
	for name, role := range table.Roles {
		role.Name = name
		r.roles[name] = &role
	}
	return r, nil
}

// Allows reports whether role grants capability. Unknown roles grant nothing.
func (r *Registry) Allows(role string, capability Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rc, ok := r.roles[role]
	if !ok {
		return false
	}
	for _, c := range rc.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// GetRole returns the table entry for role.
func (r *Registry) GetRole(role string) (*RoleCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rc, ok := r.roles[role]
	if !ok {
		return nil, fmt.Errorf("unknown role: %s", role)
	}
	return rc, nil
}

// ListRoles returns all role names in sorted order.
func (r *Registry) ListRoles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package orchestrator

import (
	"errors"
	"fmt"
)

// Roster is the ordered, immutable set of roles taking part in a run.
// The registration order defines the canonical pipeline order.
type Roster struct {
	roles []Role
	index map[RoleName]int
}

// NewRoster validates roles and builds a roster
func NewRoster(roles ...Role) (*Roster, error) {
	if len(roles) == 0 {
		return nil, errors.New("at least one role is required")
	}

	r := &Roster{
		roles: make([]Role, 0, len(roles)),
		index: make(map[RoleName]int, len(roles)),
	}

	for _, role := range roles {
		if err := role.Validate(); err != nil {
			return nil, fmt.Errorf("invalid role: %w", err)
		}
		if _, exists := r.index[role.Name]; exists {
			return nil, fmt.Errorf("role already registered: %s", role.Name)
		}
		r.index[role.Name] = len(r.roles)
		r.roles = append(r.roles, role)
	}

	return r, nil
}

// Get retrieves a role by name
func (r *Roster) Get(name RoleName) (Role, error) {
	i, exists := r.index[name]
	if !exists {
		return Role{}, fmt.Errorf("role not found: %s", name)
	}
	return r.roles[i], nil
}

// List returns the roles in pipeline order
func (r *Roster) List() []Role {
	out := make([]Role, len(r.roles))
	copy(out, r.roles)
	return out
}

// Names returns the role names in pipeline order
func (r *Roster) Names() []RoleName {
	names := make([]RoleName, len(r.roles))
	for i, role := range r.roles {
		names[i] = role.Name
	}
	return names
}

// Index returns the pipeline position of a role, or -1 when unknown
func (r *Roster) Index(name RoleName) int {
	if i, exists := r.index[name]; exists {
		return i
	}
	return -1
}

// Exists checks if a role is part of the roster
func (r *Roster) Exists(name RoleName) bool {
	_, exists := r.index[name]
	return exists
}

// Count returns the number of roles
func (r *Roster) Count() int {
	return len(r.roles)
}

// First returns the role that opens the pipeline
func (r *Roster) First() Role {
	return r.roles[0]
}

// Last returns the role that closes the pipeline
func (r *Roster) Last() Role {
	return r.roles[len(r.roles)-1]
}

package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/initiumportal/stance/pkg/idx"
)

// Resource permission keys granted through roles.
const (
	ResourceUserRead  = "user:read"
	ResourceUserWrite = "user:write"
	ResourceRoleRead  = "role:read"
	ResourceRoleWrite = "role:write"
)

// KnownResources is every resource a role may grant.
var KnownResources = []string{ResourceUserRead, ResourceUserWrite, ResourceRoleRead, ResourceRoleWrite}

type Role struct {
	ID          string
	Name        string
	Resources   []string
	WhenCreated time.Time
	Version     int64
}

// NewRole builds a role with a fresh id. Resources are de-duplicated and sorted.
func NewRole(name string, resources []string, now time.Time) *Role {
	return &Role{
		ID:          idx.New().String(),
		Name:        strings.TrimSpace(name),
		Resources:   normalizeResources(resources),
		WhenCreated: now.UTC(),
	}
}

// Update replaces the role's name and resources.
func (r *Role) Update(name string, resources []string) {
	r.Name = strings.TrimSpace(name)
	r.Resources = normalizeResources(resources)
}

func (r Role) Grants(resource string) bool {
	return slices.Contains(r.Resources, resource)
}

func normalizeResources(resources []string) []string {
	out := slices.Clone(resources)
	slices.Sort(out)
	return slices.Compact(out)
}

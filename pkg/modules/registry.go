package modules

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// UserManagement is the module whose permissions customer-success users hold implicitly
const UserManagement = "UserManagement"

// Separator joins module and action in a permission name
const Separator = ":"

//go:embed modules.yaml
var defaultDocument []byte

// PermissionDef is a single grantable action of a module
type PermissionDef struct {
	Action string `yaml:"action" json:"action"`
	Label  string `yaml:"label" json:"label"`
}

// Module is a named group of permissions
type Module struct {
	Name        string          `yaml:"name" json:"name"`
	Label       string          `yaml:"label" json:"label"`
	Enabled     bool            `yaml:"enabled" json:"enabled"`
	Permissions []PermissionDef `yaml:"permissions" json:"permissions"`
}

// PermissionNames returns the namespaced permission names of the module
func (m Module) PermissionNames() []string {
	names := make([]string, 0, len(m.Permissions))
	for _, p := range m.Permissions {
		names = append(names, PermissionName(m.Name, p.Action))
	}
	return names
}

// PermissionName renders "<module>:<action>"
func PermissionName(module, action string) string {
	return module + Separator + action
}

// Permission is a flattened registry entry used for seeding
type Permission struct {
	Name   string
	Label  string
	Module string
}

// Registry is immutable after construction
type Registry struct {
	modules  []Module
	byName   map[string]int
	userMgmt map[string]struct{}
}

type document struct {
	Modules []Module `yaml:"modules"`
}

// Parse builds a registry from a YAML document
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse module registry: %w", err)
	}
	return New(doc.Modules)
}

// New validates modules and builds a registry
func New(mods []Module) (*Registry, error) {
	r := &Registry{
		modules:  make([]Module, 0, len(mods)),
		byName:   make(map[string]int, len(mods)),
		userMgmt: make(map[string]struct{}),
	}

	seen := make(map[string]struct{})
	for _, m := range mods {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" || strings.Contains(m.Name, Separator) {
			return nil, fmt.Errorf("invalid module name %q", m.Name)
		}
		if _, dup := r.byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate module %q", m.Name)
		}

		perms := make([]PermissionDef, 0, len(m.Permissions))
		for _, p := range m.Permissions {
			p.Action = strings.TrimSpace(p.Action)
			if p.Action == "" || strings.Contains(p.Action, Separator) {
				return nil, fmt.Errorf("module %s: invalid action %q", m.Name, p.Action)
			}
			name := PermissionName(m.Name, p.Action)
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("duplicate permission %q", name)
			}
			seen[name] = struct{}{}
			perms = append(perms, p)
		}
		m.Permissions = perms

		r.byName[m.Name] = len(r.modules)
		r.modules = append(r.modules, m)

		if m.Name == UserManagement {
			for _, name := range m.PermissionNames() {
				r.userMgmt[name] = struct{}{}
			}
		}
	}

	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the registry built from the embedded document. It is
// parsed once per process.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Parse(defaultDocument)
	})
	return defaultRegistry, defaultErr
}

// MustDefault panics if the embedded registry is invalid
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// ListEnabled returns enabled modules in declaration order
func (r *Registry) ListEnabled() []Module {
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		if m.Enabled {
			out = append(out, copyModule(m))
		}
	}
	return out
}

// FindByName returns the module with the given name
func (r *Registry) FindByName(name string) (Module, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Module{}, false
	}
	return copyModule(r.modules[i]), true
}

// PermissionNames returns the namespaced permission names of the named
// module, or nil when it does not exist
func (r *Registry) PermissionNames(module string) []string {
	m, ok := r.FindByName(module)
	if !ok {
		return nil
	}
	return m.PermissionNames()
}

// UserManagementPermissions returns the customer-success allowlist. The
// returned map is a copy.
func (r *Registry) UserManagementPermissions() map[string]struct{} {
	out := make(map[string]struct{}, len(r.userMgmt))
	for k := range r.userMgmt {
		out[k] = struct{}{}
	}
	return out
}

// IsUserManagementPermission reports whether name belongs to the UserManagement module
func (r *Registry) IsUserManagementPermission(name string) bool {
	_, ok := r.userMgmt[name]
	return ok
}

// AllPermissions flattens the permissions of all enabled modules
func (r *Registry) AllPermissions() []Permission {
	var out []Permission
	for _, m := range r.modules {
		if !m.Enabled {
			continue
		}
		for _, p := range m.Permissions {
			out = append(out, Permission{
				Name:   PermissionName(m.Name, p.Action),
				Label:  p.Label,
				Module: m.Name,
			})
		}
	}
	return out
}

// Has reports whether name is declared by an enabled module
func (r *Registry) Has(name string) bool {
	mod, action, ok := strings.Cut(name, Separator)
	if !ok {
		return false
	}
	m, found := r.FindByName(mod)
	if !found || !m.Enabled {
		return false
	}
	for _, p := range m.Permissions {
		if p.Action == action {
			return true
		}
	}
	return false
}

func copyModule(m Module) Module {
	perms := make([]PermissionDef, len(m.Permissions))
	copy(perms, m.Permissions)
	m.Permissions = perms
	return m
}

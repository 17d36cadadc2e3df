package rbac

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/modules"
)

// RouteTable maps "METHOD /path/template" to the permissions an endpoint
// requires. It is filled while routes are mounted and only read afterwards.
type RouteTable struct {
	registry *modules.Registry
	entries  map[string]PermissionSet
}

// NewRouteTable creates an empty table validating names against registry
func NewRouteTable(registry *modules.Registry) *RouteTable {
	return &RouteTable{
		registry: registry,
		entries:  make(map[string]PermissionSet),
	}
}

// RouteKey builds the lookup key for a method and mux path template
func RouteKey(method, pathTemplate string) string {
	return strings.ToUpper(method) + " " + pathTemplate
}

// Declare records the permissions for a route. Names must be declared by an
// enabled module or be the wildcard.
func (t *RouteTable) Declare(method, pathTemplate string, permissions ...string) error {
	key := RouteKey(method, pathTemplate)
	if _, dup := t.entries[key]; dup {
		return fmt.Errorf("route %s declared twice", key)
	}

	set := NewPermissionSet(permissions...)
	for name := range set {
		if name == Wildcard {
			continue
		}
		if t.registry != nil && !t.registry.Has(name) {
			return fmt.Errorf("route %s: %w: %s", key, ErrUnknownPermission, name)
		}
	}

	t.entries[key] = set
	return nil
}

// Handle mounts h on router and declares its permissions under the full path
// template, including any subrouter prefix. It panics on an invalid
// declaration since routes are mounted at startup.
func (t *RouteTable) Handle(router *mux.Router, method, path string, h http.HandlerFunc, permissions ...string) *mux.Route {
	route := router.HandleFunc(path, h).Methods(method)

	tmpl, err := route.GetPathTemplate()
	if err != nil {
		panic(fmt.Sprintf("rbac: route %s %s: %v", method, path, err))
	}
	if err := t.Declare(method, tmpl, permissions...); err != nil {
		panic("rbac: " + err.Error())
	}
	return route
}

// Lookup returns the permissions declared for key; undeclared routes need none
func (t *RouteTable) Lookup(key string) PermissionSet {
	if set, ok := t.entries[key]; ok {
		return set
	}
	return PermissionSet{}
}

// Required resolves the matched route of r to its declared permissions
func (t *RouteTable) Required(r *http.Request) PermissionSet {
	route := mux.CurrentRoute(r)
	if route == nil {
		return PermissionSet{}
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return PermissionSet{}
	}
	return t.Lookup(RouteKey(r.Method, tmpl))
}

// Entries lists every declaration with sorted permission names, keyed by route
func (t *RouteTable) Entries() map[string][]string {
	out := make(map[string][]string, len(t.entries))
	for k, set := range t.entries {
		out[k] = set.Names()
	}
	return out
}

// Keys returns the declared route keys in sorted order
func (t *RouteTable) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

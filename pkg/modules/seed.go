package modules

import (
	"context"
	"fmt"
)

// PermissionWriter persists permission reference rows
type PermissionWriter interface {
	// UpsertPermission inserts the permission or updates its label, keyed by name
	UpsertPermission(ctx context.Context, name, label string) error
}

// Seed writes every permission of every enabled module. Running it again is a no-op
// apart from label refreshes.
func (r *Registry) Seed(ctx context.Context, w PermissionWriter) (int, error) {
	n := 0
	for _, p := range r.AllPermissions() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := w.UpsertPermission(ctx, p.Name, p.Label); err != nil {
			return n, fmt.Errorf("failed to seed permission %s: %w", p.Name, err)
		}
		n++
	}
	return n, nil
}

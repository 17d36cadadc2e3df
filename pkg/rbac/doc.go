// Package rbac decides whether the acting user of a request may reach an
// endpoint.
//
// # Model
//
// Every user has at most one role and a role is a set of permission names of
// the form "Module:action" declared by the module registry. Roles 1 to 3 are
// system roles seeded by migrations and cannot be edited or deleted. Custom
// roles get ids from 100 upwards.
//
// # Evaluation
//
// Guard.Check runs a fixed pipeline. An empty required set is allowed. A
// missing effective user is denied. Then the short-circuit rules run in order
// and the first to match allows the request:
//
//	superadmin        the effective user is a superadmin
//	customer-success  a customer-success user and any required permission is a
//	                  UserManagement or Documents permission
//	customer-owner    the effective user owns the acting customer
//
// Otherwise the effective user's role must hold at least one required
// permission. The wildcard "*" is held by any role of a user without a
// customer, provided the role has at least one permission.
//
// A guarded request reads the store at most twice: the acting customer and
// the role. Store failures follow the configured auth.StoreErrorPolicy.
//
// # Routes
//
// Permissions are declared when routes are mounted:
//
//	routes := rbac.NewRouteTable(registry)
//	routes.Handle(api, http.MethodGet, "/roles", h.ListRoles, "RoleManagement:viewRoles")
//	api.Use(rbac.NewPermissionMiddleware(guard, routes).Handler)
//
// Undeclared routes require nothing.
package rbac

// Package impersonation lets an authorized admin act as another user.
//
// A session is created by POST /impersonation and identified by an opaque
// token. Clients send the token in the X-Impersonation-Token header next to
// their own bearer token; the authentication guard resolves it through
// Store.ResolveImpersonation. Sessions live in Redis with a TTL and an actor
// holds at most one at a time.
//
// Starting a session is refused when:
//
//   - the actor targets themselves
//   - the target is a superadmin and the actor is not
//   - the target is suspended or deactivated
//   - the actor is scoped to a customer the target does not belong to
//   - the actor is already impersonating someone
package impersonation

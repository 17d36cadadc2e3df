// Package audit records an audit trail of administrative activity.
//
// # Overview
//
// Every mutating request under the admin API and every request the
// permission guard or a handler refuses with 403 produces one Event. Events
// carry the effective actor, the real actor when impersonating, and the
// acting customer, so a customer's trail can be read back without leaking
// other tenants' activity.
//
// # Event Types
//
// Mutations are named "<resource>.<verb>" from the matched route template,
// for example "roles.create", "users.status.update" or
// "impersonation.delete". Refusals use "authz.denied".
//
// # Sinks
//
// Store persists events to Postgres. LogSink mirrors them to the structured
// application log. MultiLogger fans out to several sinks.
//
// # Usage
//
//	store := audit.NewStore(db)
//	mw := audit.NewMiddleware(audit.NewMultiLogger(store, audit.NewLogSink(logger)), "/api/v1")
//	router.Use(authMW.Handler, mw.Handler, permissionMW.Handler)
package audit

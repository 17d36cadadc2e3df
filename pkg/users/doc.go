// Package users administers the people who sign in to the platform.
//
// Users are invited into a customer with a role, then move between the
// active, suspended and deactivated states. Rows are never deleted so that
// authored content and audit trails keep a valid reference.
//
// Every operation is scoped to the acting customer: a caller working inside
// a customer only sees and edits that customer's users. Callers without an
// acting customer (system scope) see everyone.
package users

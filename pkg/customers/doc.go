// Package customers manages tenants and their owners.
//
// The owner of a customer passes every permission check inside that
// customer, so ownership can only point at a user who belongs to it.
package customers

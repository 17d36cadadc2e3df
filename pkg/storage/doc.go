// Package storage opens the backing stores: a Postgres primary with optional
// read replicas, and the Redis client used for impersonation sessions.
//
// Replicas serve authorization reads only. Replica lag means a permission
// change may take effect a little later on guarded requests, which is the
// same staleness the role cache already accepts.
package storage

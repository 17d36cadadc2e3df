package storage

import (
	"context"
	"database/sql"
)

// DBTX is the query surface stores need. *sql.DB and *ReadRouter satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ReadRouter picks a replica per call, so replicas dropped by maintenance stop
// receiving queries and the primary takes over when none are left.
type ReadRouter struct {
	cm *ConnectionManager
}

// Reader returns a read-side handle bound to the manager's current replica set
func (cm *ConnectionManager) Reader() *ReadRouter {
	return &ReadRouter{cm: cm}
}

func (r *ReadRouter) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.cm.Replica().ExecContext(ctx, query, args...)
}

func (r *ReadRouter) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return r.cm.Replica().QueryContext(ctx, query, args...)
}

func (r *ReadRouter) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.cm.Replica().QueryRowContext(ctx, query, args...)
}

func (r *ReadRouter) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return r.cm.Replica().BeginTx(ctx, opts)
}

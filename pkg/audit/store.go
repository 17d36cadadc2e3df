package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

// ErrNotFound is returned when an event does not exist or is out of scope
var ErrNotFound = errors.New("audit event not found")

const (
	defaultLimit = 50
	maxLimit     = 500
)

const eventColumns = `
	id, timestamp, event_type, status,
	actor_id, real_actor_id, customer_id,
	resource_type, resource_id,
	route, method, path, status_code,
	request_id, ip_address, user_agent,
	message, metadata
`

// Store persists audit events to the audit_events table
type Store struct {
	db storage.DBTX
}

// NewStore creates a database-backed audit store
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db}
}

// Log inserts the event and sets its ID
func (s *Store) Log(ctx context.Context, event *Event) error {
	var metadata interface{}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = raw
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status,
			actor_id, real_actor_id, customer_id,
			resource_type, resource_id,
			route, method, path, status_code,
			request_id, ip_address, user_agent,
			message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8,
			$9, $10, $11, $12,
			$13, $14, $15,
			$16, $17
		) RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status),
		nullable(event.ActorID), nullable(event.RealActorID), event.CustomerID,
		nullable(event.ResourceType), nullable(event.ResourceID),
		event.Route, event.Method, event.Path, event.StatusCode,
		event.RequestID, event.IPAddress, event.UserAgent,
		event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Get returns one event. A non-nil customerID restricts the lookup to that
// customer's events.
func (s *Store) Get(ctx context.Context, id int64, customerID *string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE id = $1`
	args := []interface{}{id}
	if customerID != nil {
		query += ` AND customer_id = $2`
		args = append(args, *customerID)
	}

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, args...))
	if storage.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

// Search returns events matching filter, newest first
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.StartTime != nil {
		add("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		add("timestamp <= $%d", *filter.EndTime)
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("(actor_id = $%d OR real_actor_id = $%d)", len(args), len(args)))
	}
	if filter.CustomerID != nil {
		add("customer_id = $%d", *filter.CustomerID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}
		add("event_type = ANY($%d)", pq.Array(types))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		event                          Event
		eventType, status              string
		actorID, realActorID, customer sql.NullString
		resourceType, resourceID       sql.NullString
		metadata                       []byte
	)

	err := row.Scan(
		&event.ID, &event.Timestamp, &eventType, &status,
		&actorID, &realActorID, &customer,
		&resourceType, &resourceID,
		&event.Route, &event.Method, &event.Path, &event.StatusCode,
		&event.RequestID, &event.IPAddress, &event.UserAgent,
		&event.Message, &metadata,
	)
	if err != nil {
		return nil, err
	}

	event.EventType = EventType(eventType)
	event.Status = EventStatus(status)
	event.ActorID = actorID.String
	event.RealActorID = realActorID.String
	if customer.Valid {
		event.CustomerID = &customer.String
	}
	event.ResourceType = resourceType.String
	event.ResourceID = resourceID.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &event, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

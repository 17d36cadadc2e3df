package audit

import (
	"time"
)

// EventType names what happened
type EventType string

// EventTypeDenied marks a request refused with 403
const EventTypeDenied EventType = "authz.denied"

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// ActorID is the effective user. RealActorID differs only while impersonating.
	ActorID     string  `json:"actor_id,omitempty"`
	RealActorID string  `json:"real_actor_id,omitempty"`
	CustomerID  *string `json:"customer_id,omitempty"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	Route      string `json:"route,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IsImpersonated reports whether the actor acted through an impersonation session
func (e *Event) IsImpersonated() bool {
	return e.RealActorID != "" && e.RealActorID != e.ActorID
}

// SearchFilter represents filters for searching audit events
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters; ActorID matches either the effective or the real actor
	ActorID    string
	CustomerID *string

	// Event filters
	EventTypes   []EventType
	Status       EventStatus
	ResourceType string
	ResourceID   string

	// Pagination
	Limit  int
	Offset int
}

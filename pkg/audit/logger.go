package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

// Logger is the interface for audit sinks
type Logger interface {
	// Log records an event. Implementations may set event.ID.
	Log(ctx context.Context, event *Event) error
}

// NopLogger discards events
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(context.Context, *Event) error { return nil }

// LogSink mirrors audit events into the structured application log
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Log implements Logger
func (s *LogSink) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit":       true,
		"event_type":  string(event.EventType),
		"status":      string(event.Status),
		"actor_id":    event.ActorID,
		"route":       event.Route,
		"status_code": event.StatusCode,
	}
	if event.IsImpersonated() {
		fields["real_actor_id"] = event.RealActorID
	}
	if event.CustomerID != nil {
		fields["customer_id"] = *event.CustomerID
	}
	if event.ResourceID != "" {
		fields["resource_id"] = event.ResourceID
	}

	observability.FromContextOr(ctx, s.logger).WithFields(fields).Info("audit event")
	return nil
}

// MultiLogger logs to several sinks. Every sink is attempted; the errors
// are joined.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every given sink
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log implements Logger, writing to the sinks concurrently
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if len(m.loggers) == 1 {
		return m.loggers[0].Log(ctx, event)
	}

	// Each sink gets its own copy; the first carries the ID back
	var wg sync.WaitGroup
	errs := make([]error, len(m.loggers))
	copies := make([]Event, len(m.loggers))
	for i, l := range m.loggers {
		copies[i] = *event
		wg.Add(1)
		go func(i int, l Logger) {
			defer wg.Done()
			errs[i] = l.Log(ctx, &copies[i])
		}(i, l)
	}
	wg.Wait()

	if len(copies) > 0 {
		event.ID = copies[0].ID
	}
	return errors.Join(errs...)
}

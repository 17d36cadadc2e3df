package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/contextkeys"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

const writeTimeout = 5 * time.Second

var verbs = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

// Middleware records mutating and refused requests. Handler must run after the
// authentication middleware so the acting context is available, and before
// the permission middleware so guard refusals are seen. Refusals raised by
// authentication itself reach RecordDenial through the auth middleware's hook.
type Middleware struct {
	logger  Logger
	prefix  string
	log     *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures the middleware
type Option func(*Middleware)

// WithLogger sets the application logger used when the request has none
func WithLogger(l *observability.Logger) Option {
	return func(m *Middleware) { m.log = l }
}

// WithMetrics counts audit write failures
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Middleware) { m.metrics = metrics }
}

// NewMiddleware creates an audit middleware. prefix is stripped from route
// templates when naming events.
func NewMiddleware(logger Logger, prefix string, opts ...Option) *Middleware {
	m := &Middleware{
		logger: logger,
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler with audit logging
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		_, mutating := verbs[r.Method]
		if !mutating && wrapped.statusCode != http.StatusForbidden {
			return
		}

		event := m.buildEvent(r, wrapped.statusCode)
		if acting, ok := middleware.ActingFromContext(r.Context()); ok {
			applyActing(event, acting)
		}
		m.write(r, event)
	})
}

// RecordDenial records a refusal raised by the authentication middleware,
// before any acting context exists. It matches middleware.DenialFunc.
func (m *Middleware) RecordDenial(r *http.Request, authCtx *auth.AuthContext, err *auth.AccessError) {
	event := m.buildEvent(r, http.StatusForbidden)
	if authCtx != nil {
		applyActing(event, auth.ResolveActingContext(authCtx))
	}
	if err != nil {
		event.Message = err.Message()
	}
	m.write(r, event)
}

func (m *Middleware) write(r *http.Request, event *Event) {
	// The client may already be gone; the trail must still be written
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), writeTimeout)
	defer cancel()
	if err := m.logger.Log(ctx, event); err != nil {
		m.metrics.RecordStoreError("audit_log")
		observability.FromContextOr(r.Context(), m.log).
			WithField("event_type", string(event.EventType)).
			WithError(err).Error("failed to write audit event")
	}
}

func (m *Middleware) buildEvent(r *http.Request, statusCode int) *Event {
	template := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if t, err := route.GetPathTemplate(); err == nil {
			template = t
		}
	}

	resources := resourceSegments(strings.TrimPrefix(template, m.prefix))

	event := &Event{
		Timestamp:  m.now().UTC(),
		Route:      template,
		Method:     r.Method,
		Path:       r.URL.Path,
		StatusCode: statusCode,
		RequestID:  contextkeys.GetRequestID(r.Context()),
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		ResourceID: mux.Vars(r)["id"],
		Message:    http.StatusText(statusCode),
	}
	if len(resources) > 0 {
		event.ResourceType = resources[0]
	}

	switch {
	case statusCode == http.StatusForbidden:
		event.EventType = EventTypeDenied
		event.Status = EventStatusDenied
	case statusCode >= 400:
		event.EventType = mutationType(resources, r.Method)
		event.Status = EventStatusFailure
	default:
		event.EventType = mutationType(resources, r.Method)
		event.Status = EventStatusSuccess
	}

	return event
}

func applyActing(event *Event, acting auth.ActingContext) {
	event.ActorID = acting.UserID()
	if acting.RealUser != nil {
		event.RealActorID = acting.RealUser.ID
	}
	if acting.CustomerID != nil {
		customer := *acting.CustomerID
		event.CustomerID = &customer
	}
}

// resourceSegments returns the literal segments of a route template
func resourceSegments(template string) []string {
	var out []string
	for _, seg := range strings.Split(strings.Trim(template, "/"), "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		out = append(out, seg)
	}
	return out
}

func mutationType(resources []string, method string) EventType {
	verb, ok := verbs[method]
	if !ok {
		verb = strings.ToLower(method)
	}
	return EventType(strings.Join(append(append([]string{}, resources...), verb), "."))
}

// clientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the peer address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/contextkeys"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

// ErrorResponse is the error envelope returned by every endpoint
type ErrorResponse struct {
	Error     string   `json:"error"`
	Reason    string   `json:"reason,omitempty"`
	Missing   []string `json:"missing_permissions,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteSuccess writes a 200 response with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	_ = WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 response with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) {
	_ = WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteInternalError logs err and writes a generic 500. Store errors are not
// echoed to clients.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).Error("request failed")
	_ = WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:     "internal server error",
		RequestID: contextkeys.GetRequestID(r.Context()),
	})
}

// StatusForKind maps an access error kind to its HTTP status
func StatusForKind(kind auth.ErrorKind) int {
	switch kind {
	case auth.KindUnauthenticated:
		return http.StatusUnauthorized
	case auth.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

// WriteAccessError writes the response for an authentication or authorization
// failure. Errors that are not *auth.AccessError become a 500.
func WriteAccessError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *auth.AccessError
	if !errors.As(err, &ae) {
		WriteInternalError(w, r, err)
		return
	}

	if ae.Kind == auth.KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tenantadmin"`)
	}

	_ = WriteJSON(w, StatusForKind(ae.Kind), ErrorResponse{
		Error:     ae.Message(),
		Reason:    ae.Reason,
		Missing:   ae.Missing,
		RequestID: contextkeys.GetRequestID(r.Context()),
	})
}

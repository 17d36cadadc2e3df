package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// ParseJSON decodes JSON from the request body into the destination. Unknown
// fields are rejected.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(w, r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParsePathInt64OrError extracts an int64 path parameter and writes a 400 on failure
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	str := mux.Vars(r)[key]
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid integer for %s: %q", key, str))
		return 0, false
	}
	return val, true
}

// PathString returns a trimmed path parameter, writing a 400 when it is empty
func PathString(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	if val == "" {
		WriteBadRequest(w, "missing path parameter: "+key)
		return "", false
	}
	return val, true
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// Page holds limit/offset pagination parameters
type Page struct {
	Limit  int
	Offset int
}

// ParsePageOrError reads limit and offset, clamping limit to [1,maxLimit]
func ParsePageOrError(w http.ResponseWriter, r *http.Request, defaultLimit, maxLimit int) (Page, bool) {
	limit, err := ParseQueryInt(r, "limit", defaultLimit)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return Page{}, false
	}
	offset, err := ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		WriteBadRequest(w, "offset must be a non-negative integer")
		return Page{}, false
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Page{Limit: limit, Offset: offset}, true
}

// RequireNonEmpty validates that a string field is not empty
func RequireNonEmpty(w http.ResponseWriter, value, fieldName string) bool {
	if strings.TrimSpace(value) == "" {
		WriteBadRequest(w, fmt.Sprintf("%s is required", fieldName))
		return false
	}
	return true
}

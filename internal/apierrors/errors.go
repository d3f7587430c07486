package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// ErrNotFound is matched by any *APIError carrying HTTP 404
var ErrNotFound = errors.New("resource not found")

const maxBodyInMessage = 512

// APIError is a well-formed HTTP response with an unexpected status code
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

// New builds an APIError
func New(method, url string, statusCode int, body []byte) *APIError {
	return &APIError{Method: method, URL: url, StatusCode: statusCode, Body: body}
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := e.Message()
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.NotFound() {
		return fmt.Sprintf("%s %s: not found (404): %s", e.Method, e.URL, msg)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

// NotFound reports whether the server answered 404
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Is implements errors.Is so that errors.Is(err, ErrNotFound) matches a 404
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.NotFound()
}

// Message returns the server-provided message. Kubernetes Status bodies are
// unpacked; any other body is returned trimmed and truncated.
func (e *APIError) Message() string {
	if status := e.Status(); status != nil && status.Message != "" {
		return status.Message
	}
	body := strings.TrimSpace(string(e.Body))
	if len(body) > maxBodyInMessage {
		body = truncate(body, maxBodyInMessage) + "..."
	}
	return body
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Status decodes the body as a Kubernetes Status object, nil if it is not one
func (e *APIError) Status() *metav1.Status {
	if len(e.Body) == 0 {
		return nil
	}
	var status metav1.Status
	if err := utiljson.Unmarshal(e.Body, &status); err != nil {
		return nil
	}
	if status.Kind != "Status" {
		return nil
	}
	return &status
}

// IsNotFound reports whether err (or any error in its chain) is a 404 APIError
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAPIError reports whether err carries an APIError and returns it
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusCode returns the HTTP status of an APIError in err's chain, or 0
func StatusCode(err error) int {
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.StatusCode
	}
	return 0
}

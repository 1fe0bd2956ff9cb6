// Package health provides health reporting for semblog components
package health

import (
	"net/http"
	"regexp"
	"time"
)

// State is the coarse health of a component
type State string

// Health states, ordered from best to worst
const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health of a component or of the whole service
type Status struct {
	Component   string         `json:"component"`
	Healthy     bool           `json:"healthy"`
	State       State          `json:"status"`
	Message     string         `json:"message"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
	SubStatuses []Status       `json:"sub_statuses,omitempty"`
}

// Reporter is implemented by components that can describe their health
type Reporter interface {
	Health() Status
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.State == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.State == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.State == StateUnhealthy
}

// WithDetail returns a copy of the status with one detail attribute set
func (s Status) WithDetail(key string, value any) Status {
	details := make(map[string]any, len(s.Details)+1)
	for k, v := range s.Details {
		details[k] = v
	}
	details[key] = value
	s.Details = details
	return s
}

// HTTPStatus maps the state to a response code for health endpoints.
// Degraded services still answer requests and report 200.
func (s Status) HTTPStatus() int {
	if s.IsUnhealthy() {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// sanitize strips URLs, addresses and credentials from error text before it
// is exposed on an unauthenticated endpoint.
func sanitize(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	return credentialRegex.ReplaceAllString(msg, "[REDACTED]")
}

// Package health reports the health of collector pipelines
package health

import (
	"regexp"
	"time"

	"github.com/c360/readport/component"
)

var (
	urlRegex        = regexp.MustCompile(`[a-z]+://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesPerSecond float64       `json:"messages_per_second"`
	ErrorRate         float64       `json:"error_rate"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// sanitizeErrorMessage strips device addresses, file paths and credentials
// from error text before it is served on the unauthenticated health endpoint
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}
	s := urlRegex.ReplaceAllString(err, "[URL]")
	s = unixPathRegex.ReplaceAllString(s, "[PATH]")
	s = ipAddrRegex.ReplaceAllString(s, "[IP]")
	s = portRegex.ReplaceAllString(s, "[PORT]")
	return credentialRegex.ReplaceAllString(s, "[REDACTED]")
}

// FromComponentHealth converts a component.HealthStatus to a Status.
// A healthy component that has recorded errors is reported as degraded.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	status := "unhealthy"
	message := "Component unhealthy"
	switch {
	case ch.Healthy && ch.LastError != "":
		status = "degraded"
		message = sanitizeErrorMessage(ch.LastError)
	case ch.Healthy:
		status = "healthy"
		message = "Component healthy"
	case ch.LastError != "":
		message = sanitizeErrorMessage(ch.LastError)
	}

	return Status{
		Component: name,
		Healthy:   status == "healthy",
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:     ch.Uptime,
			ErrorCount: ch.ErrorCount,
		},
	}
}

// FromComponent builds a Status from a component's health and data flow
func FromComponent(c component.Discoverable) Status {
	s := FromComponentHealth(c.Meta().Name, c.Health())
	flow := c.DataFlow()
	s.Metrics.MessagesPerSecond = flow.MessagesPerSecond
	s.Metrics.ErrorRate = flow.ErrorRate
	s.Metrics.LastActivity = flow.LastActivity
	return s
}

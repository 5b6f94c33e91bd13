package health

import (
	"strconv"
	"time"
)

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == "healthy",
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, "healthy", message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, "unhealthy", message)
}

// NewDegraded creates a degraded status. A pipeline is degraded while it is
// running but not connected to its device.
func NewDegraded(component, message string) Status {
	return newStatus(component, "degraded", message)
}

// Aggregate combines per-pipeline statuses into the system status. The worst
// sub-status wins; with no pipelines at all nothing is collecting, which is
// unhealthy.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewUnhealthy(component, "No pipelines running")
	}

	var unhealthy, degraded int
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy > 0:
		status = NewUnhealthy(component, pluralize(unhealthy, "pipeline is", "pipelines are")+" unhealthy")
	case degraded > 0:
		status = NewDegraded(component, pluralize(degraded, "pipeline is", "pipelines are")+" degraded")
	default:
		status = NewHealthy(component, "All pipelines are healthy")
	}

	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

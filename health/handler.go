package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/c360/readport/component"
)

// Monitor aggregates the health of registered components and serves it as JSON
type Monitor struct {
	system string

	mu         sync.RWMutex
	components map[string]component.Discoverable
}

// NewMonitor creates a monitor reporting under the given system name
func NewMonitor(system string) *Monitor {
	return &Monitor{
		system:     system,
		components: make(map[string]component.Discoverable),
	}
}

// Add registers a component under its metadata name
func (m *Monitor) Add(c component.Discoverable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[c.Meta().Name] = c
}

// Remove stops monitoring a component
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.components, name)
}

// Check queries every component and aggregates the result
func (m *Monitor) Check() Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.components))
	for name := range m.components {
		names = append(names, name)
	}
	sort.Strings(names)
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, FromComponent(m.components[name]))
	}
	m.mu.RUnlock()

	return Aggregate(m.system, statuses)
}

// ServeHTTP answers 200 when the system is healthy or degraded and 503 otherwise
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := m.Check()

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

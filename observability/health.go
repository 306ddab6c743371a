package observability

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusDegraded HealthStatus = "degraded"
)

// Health describes the health of an individual component, such as one bridge.
type Health struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthChecker is implemented by components that can report their health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) Health
}

// HealthReport aggregates the health of several components.
type HealthReport struct {
	Name       string       `json:"name"`
	Status     HealthStatus `json:"status"`
	Components []Health     `json:"components,omitempty"`
}

// NewHealthReport creates a HealthReport with status up.
func NewHealthReport(name string) *HealthReport {
	return &HealthReport{
		Name:   name,
		Status: HealthStatusUp,
	}
}

// Collect queries every checker and adds its result.
func (r *HealthReport) Collect(ctx context.Context, checkers ...HealthChecker) *HealthReport {
	for _, c := range checkers {
		r.AddComponent(c.CheckHealth(ctx))
	}
	return r
}

// AddComponent adds a component health result and degrades overall status if needed.
func (r *HealthReport) AddComponent(ch Health) {
	r.Components = append(r.Components, ch)

	switch ch.Status {
	case HealthStatusDown:
		r.Status = HealthStatusDown
	case HealthStatusDegraded:
		if r.Status != HealthStatusDown {
			r.Status = HealthStatusDegraded
		}
	}
}

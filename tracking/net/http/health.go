package http

import (
	"github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"
	"github.com/gofiber/fiber/v2"
)

// DependencyCheck describes one dependency reported by HealthWithDependencies.
// HealthCheck, when set, wins over the circuit breaker state.
type DependencyCheck struct {
	Name           string
	CircuitBreaker circuitbreaker.Manager
	ServiceName    string
	HealthCheck    func() bool
}

// DependencyStatus is the per-dependency entry of the health body.
type DependencyStatus struct {
	Healthy             bool   `json:"healthy"`
	CircuitBreakerState string `json:"circuit_breaker_state,omitempty"`
	ConsecutiveFailures uint32 `json:"consecutive_failures,omitempty"`
}

// HealthWithDependencies answers 200 {"status":"available"} when every
// dependency is healthy and 503 {"status":"degraded"} otherwise.
func HealthWithDependencies(checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		healthy := true
		deps := make(map[string]DependencyStatus, len(checks))

		for _, check := range checks {
			status := DependencyStatus{Healthy: true}

			if check.CircuitBreaker != nil && check.ServiceName != "" {
				counts := check.CircuitBreaker.GetCounts(check.ServiceName)

				status.Healthy = check.CircuitBreaker.IsHealthy(check.ServiceName)
				status.CircuitBreakerState = string(check.CircuitBreaker.GetState(check.ServiceName))
				status.ConsecutiveFailures = counts.ConsecutiveFailures
			}

			if check.HealthCheck != nil {
				status.Healthy = check.HealthCheck()
			}

			healthy = healthy && status.Healthy
			deps[check.Name] = status
		}

		body := fiber.Map{"status": "available"}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}

		if !healthy {
			body["status"] = "degraded"

			return Respond(c, fiber.StatusServiceUnavailable, body)
		}

		return Respond(c, fiber.StatusOK, body)
	}
}

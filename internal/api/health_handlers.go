package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// severity orders statuses so the worst component decides the overall one.
var severity = map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports the store, the event feed and, when configured, the broker",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth is one entry of the health report.
type ComponentHealth struct {
	Status  string `json:"status" enum:"healthy,degraded,unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Time taken by the check"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the worst component status plus every component.
type HealthResponse struct {
	Status     string                     `json:"status" enum:"healthy,degraded,unhealthy"`
	Components map[string]ComponentHealth `json:"components"`
}

type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	report := HealthResponse{
		Status: statusHealthy,
		Components: map[string]ComponentHealth{
			"database": s.checkStore(),
			"feed":     s.checkFeed(),
		},
	}
	if s.bus != nil {
		report.Components["broker"] = s.checkBus()
	}

	for _, c := range report.Components {
		if severity[c.Status] > severity[report.Status] {
			report.Status = c.Status
		}
	}
	return &HealthOutput{Body: report}, nil
}

// checkStore times a read against badger.
func (s *Server) checkStore() ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: statusDegraded, Message: "store not configured"}
	}

	start := time.Now()
	err := s.store.Ping()
	h := ComponentHealth{Status: statusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		h.Status, h.Message = statusUnhealthy, "store read failed"
	}
	return h
}

// checkFeed reports how many feeds this instance is serving.
func (s *Server) checkFeed() ComponentHealth {
	if s.feed == nil {
		return ComponentHealth{Status: statusDegraded, Message: "event feed not configured"}
	}
	return ComponentHealth{Status: statusHealthy, Message: pluralize(s.feed.SubscriberCount(), "subscriber")}
}

// checkBus reports an open circuit breaker or a closed bus as unhealthy.
func (s *Server) checkBus() ComponentHealth {
	if !s.bus.Healthy() {
		return ComponentHealth{Status: statusUnhealthy, Message: s.bus.Driver() + " broker unavailable"}
	}
	return ComponentHealth{Status: statusHealthy, Message: s.bus.Driver()}
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

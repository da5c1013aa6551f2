// Package health serves liveness, readiness and metrics endpoints while fern runs.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Probe checks one dependency
type Probe func(ctx context.Context) error

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	LastRun    any                    `json:"last_run,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Checker provides health check functionality
type Checker struct {
	version   string
	startTime time.Time

	mu      sync.RWMutex
	probes  map[string]Probe
	ready   bool
	lastRun any
}

// NewChecker creates a new health checker
func NewChecker(version string) *Checker {
	return &Checker{
		version:   version,
		startTime: time.Now(),
		probes:    make(map[string]Probe),
	}
}

// AddProbe registers a dependency check
func (c *Checker) AddProbe(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// SetReady marks dependencies as started
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// SetLastRun records the report of the most recent run
func (c *Checker) SetLastRun(report any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRun = report
}

func (c *Checker) snapshot() (bool, any, map[string]Probe) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	probes := make(map[string]Probe, len(c.probes))
	for k, v := range c.probes {
		probes[k] = v
	}
	return c.ready, c.lastRun, probes
}

// LivenessHandler reports that the process is up
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler reports whether every dependency is reachable
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	ready, lastRun, probes := c.snapshot()
	if !ready {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "dependencies are still starting"},
			},
		})
	}

	checks := runChecks(ctx.Request().Context(), probes)
	status := overallStatus(checks)

	statusCode := http.StatusOK
	if status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		LastRun:    lastRun,
		ReportedAt: time.Now(),
	})
}

// RegisterRoutes registers health check routes
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/health")
	health.GET("", c.ReadinessHandler)
	health.GET("/live", c.LivenessHandler)
	health.GET("/ready", c.ReadinessHandler)
}

func runChecks(ctx context.Context, probes map[string]Probe) map[string]CheckResult {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]CheckResult, len(probes))
	for _, name := range names {
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := probes[name](probeCtx)
		cancel()

		if err != nil {
			checks[name] = CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start).String()}
			continue
		}
		checks[name] = CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
	}
	return checks
}

func overallStatus(checks map[string]CheckResult) Status {
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}
	return StatusHealthy
}

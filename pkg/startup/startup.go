// Package startup brings fern's external dependencies up in dependency order,
// retrying with a fibonacci backoff, and takes them down in reverse.
package startup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
)

type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

type Startup struct {
	dependencies map[string]Dependency
	statuses     map[string]Status
	started      []string
	logger       ectologger.Logger
	maxAttempts  int
	backoffUnit  time.Duration
}

func New(logger ectologger.Logger, maxAttempts int) *Startup {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Startup{
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		logger:       logger,
		maxAttempts:  maxAttempts,
		backoffUnit:  time.Second,
	}
}

func (s *Startup) Add(dependency Dependency) {
	s.dependencies[dependency.GetName()] = dependency
}

// Status returns the state of a named dependency.
func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Start starts every dependency, retrying the whole set until it succeeds or
// maxAttempts is reached. Dependencies that already started are not restarted.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Starting dependencies (attempt %d/%d)", attempt, s.maxAttempts)

		lastErr = nil
		for _, name := range s.names() {
			if err := s.start(ctx, s.dependencies[name], nil); err != nil {
				s.logger.WithError(err).Errorf("Dependency '%s' failed to start", name)
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.backoffUnit
		s.logger.Infof("Retrying in %s", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) start(ctx context.Context, dependency Dependency, chain []string) error {
	name := dependency.GetName()
	if s.statuses[name] == StatusStarted {
		return nil
	}
	for _, seen := range chain {
		if seen == name {
			return fmt.Errorf("dependency cycle: %v -> %s", chain, name)
		}
	}

	for _, parent := range dependency.DependsOn() {
		parentDep, ok := s.dependencies[parent]
		if !ok {
			return fmt.Errorf("dependency '%s' depends on unknown '%s'", name, parent)
		}
		if err := s.start(ctx, parentDep, append(chain, name)); err != nil {
			return err
		}
	}

	s.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	s.statuses[name] = StatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		return err
	}
	s.statuses[name] = StatusStarted
	s.started = append(s.started, name)
	return nil
}

// Stop stops the started dependencies in reverse start order. Every
// dependency is attempted; the first error is returned.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		s.logger.WithField("dependency", name).Infof("Stopping dependency '%s'", name)
		if err := s.dependencies[name].Stop(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.statuses[name] = StatusStopped
	}
	s.started = nil
	return firstErr
}

func (s *Startup) names() []string {
	names := make([]string, 0, len(s.dependencies))
	for name := range s.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package health provides liveness and readiness handlers for the admin
// endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc reports whether a subsystem is healthy.
type CheckFunc func(ctx context.Context) error

// Checker runs named health checks on demand.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker builds an empty checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]CheckFunc)}
}

// Register adds a named check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

type result struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (c *Checker) run(ctx context.Context) (bool, []result) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ok := true
	results := make([]result, 0, len(c.checks))
	for name, check := range c.checks {
		r := result{Name: name, OK: true}
		if err := check(ctx); err != nil {
			r.OK = false
			r.Error = err.Error()
			ok = false
		}
		results = append(results, r)
	}
	return ok, results
}

// LivenessHandler answers 200 as long as the process serves HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler runs all registered checks and answers 503 when any
// fails.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ok, results := c.run(ctx)

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ready":  ok,
			"checks": results,
		})
	}
}

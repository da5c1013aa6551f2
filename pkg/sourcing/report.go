package sourcing

import (
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/assets"
)

// Report summarizes one run.
type Report struct {
	Site      string         `json:"site"`
	StartedAt time.Time      `json:"started_at"`
	Duration  string         `json:"duration"`
	Nodes     map[string]int `json:"nodes"`
	Assets    assets.Stats   `json:"assets"`
	Aborted   bool           `json:"aborted"`
	Error     string         `json:"error,omitempty"`
}

// Total returns the number of nodes emitted.
func (r *Report) Total() int {
	total := 0
	for _, n := range r.Nodes {
		total += n
	}
	return total
}

// Types returns the emitted node types, sorted.
func (r *Report) Types() []string {
	types := make([]string, 0, len(r.Nodes))
	for t := range r.Nodes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

type counter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *counter) add(nodeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[nodeType]++
}

func (c *counter) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

package plan

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable signals that the knowledge source cannot serve lookups.
// Planning treats it as a soft failure and proceeds with reduced context.
var ErrUnavailable = errors.New("knowledge source unavailable")

// Snippet is one piece of retrieved reference material: documentation,
// a prior solved task, or pretrained-model metadata.
type Snippet struct {
	Source  string
	Content string
	Weight  float64
}

// KnowledgeSource retrieves reference snippets for a query.
type KnowledgeSource interface {
	Lookup(ctx context.Context, query string) ([]Snippet, error)
}

// CachedKnowledge memoizes lookups. The cache is the only knowledge state
// shared across runs, so population is guarded by a mutex.
type CachedKnowledge struct {
	mu      sync.Mutex
	entries map[string][]Snippet
	src     KnowledgeSource
}

// NewCachedKnowledge wraps src with a lookup cache.
func NewCachedKnowledge(src KnowledgeSource) *CachedKnowledge {
	return &CachedKnowledge{
		entries: make(map[string][]Snippet),
		src:     src,
	}
}

// Lookup serves from cache when possible. Failed lookups are not cached so a
// recovered source starts serving again immediately.
func (c *CachedKnowledge) Lookup(ctx context.Context, query string) ([]Snippet, error) {
	c.mu.Lock()
	if snippets, ok := c.entries[query]; ok {
		c.mu.Unlock()
		return snippets, nil
	}
	c.mu.Unlock()

	snippets, err := c.src.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[query] = snippets
	c.mu.Unlock()

	return snippets, nil
}

// guardedKnowledge protects a knowledge source with a circuit breaker so a
// flapping source degrades planning instead of stalling it.
type guardedKnowledge struct {
	src     KnowledgeSource
	breaker *gobreaker.CircuitBreaker
}

func newGuardedKnowledge(src KnowledgeSource) *guardedKnowledge {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "knowledge",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// User cancellation is not a source failure.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &guardedKnowledge{src: src, breaker: breaker}
}

func (g *guardedKnowledge) Lookup(ctx context.Context, query string) ([]Snippet, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.src.Lookup(ctx, query)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return result.([]Snippet), nil
}

// StaticKnowledge is an in-memory KnowledgeSource backed by a fixed corpus.
// Lookup matches snippets whose content shares a term with the query.
type StaticKnowledge struct {
	Snippets []Snippet
}

// DefaultKnowledge returns the built-in reference corpus.
func DefaultKnowledge() *StaticKnowledge {
	return &StaticKnowledge{
		Snippets: []Snippet{
			{Source: "docs/boosting", Content: "boosting ensembles lead tabular classification benchmarks", Weight: 1.0},
			{Source: "docs/forest", Content: "forest baggers tolerate missing values and need little tuning", Weight: 0.8},
			{Source: "docs/linear", Content: "linear models dominate when latency budgets are tight", Weight: 0.9},
			{Source: "tasks/churn", Content: "prior churn classification solved with gradient boosting", Weight: 0.7},
			{Source: "tasks/pricing", Content: "prior price regression solved with boosting regressor", Weight: 0.7},
		},
	}
}

func (s *StaticKnowledge) Lookup(_ context.Context, query string) ([]Snippet, error) {
	terms := strings.Fields(strings.ToLower(query))
	var matched []Snippet
	for _, snippet := range s.Snippets {
		content := strings.ToLower(snippet.Content)
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched = append(matched, snippet)
				break
			}
		}
	}
	return matched, nil
}

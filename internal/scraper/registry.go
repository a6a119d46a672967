package scraper

import (
	"fmt"

	"FundingScanner/internal/ports"
)

// Options carries the settings shared by every site scraper.
type Options struct {
	// CutoffMonths bounds how far back listing pages are walked; postings
	// older than this are ignored regardless of the known-link set.
	CutoffMonths int
	// TestLimit caps how many detail pages each scraper fetches per run.
	// Zero means unlimited.
	TestLimit int
}

// Registry keeps the configured opportunity sources in registration order.
type Registry struct {
	sources []ports.OpportunitySource
	byName  map[string]ports.OpportunitySource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]ports.OpportunitySource{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source ports.OpportunitySource) {
	if r.byName == nil {
		r.byName = map[string]ports.OpportunitySource{}
	}
	if _, exists := r.byName[source.Name()]; !exists {
		r.sources = append(r.sources, source)
	} else {
		for i, s := range r.sources {
			if s.Name() == source.Name() {
				r.sources[i] = source
				break
			}
		}
	}
	r.byName[source.Name()] = source
}

// All returns every registered source in registration order.
func (r *Registry) All() []ports.OpportunitySource {
	out := make([]ports.OpportunitySource, len(r.sources))
	copy(out, r.sources)
	return out
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.OpportunitySource, error) {
	if source, ok := r.byName[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

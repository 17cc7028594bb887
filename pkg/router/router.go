package router

import (
	"fmt"

	"github.com/acacalc/acacalc/pkg/config"
)

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves the ordered chain of narrative providers.
type Router struct {
	cfg config.NarrativeConfig
}

// New creates a Router from the narrative configuration.
func New(cfg config.NarrativeConfig) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns the ordered list of routes to try. With a configured
// fallback list its targets are returned in order, a target's model
// overriding the provider's. Otherwise every provider is tried in
// declaration order with its own model.
func (r *Router) Resolve() ([]Route, error) {
	if len(r.cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	if len(r.cfg.Fallback) == 0 {
		routes := make([]Route, 0, len(r.cfg.Providers))
		for _, p := range r.cfg.Providers {
			routes = append(routes, Route{Provider: p, Model: p.Model})
		}
		return routes, nil
	}

	// Build provider index by name
	providerIndex := make(map[string]config.ProviderConfig, len(r.cfg.Providers))
	for _, p := range r.cfg.Providers {
		providerIndex[p.Name] = p
	}

	var routes []Route
	for _, target := range r.cfg.Fallback {
		provider, ok := providerIndex[target.Provider]
		if !ok {
			continue // skip unknown providers
		}
		model := target.Model
		if model == "" {
			model = provider.Model
		}
		routes = append(routes, Route{Provider: provider, Model: model})
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("fallback: all providers unknown")
	}
	return routes, nil
}

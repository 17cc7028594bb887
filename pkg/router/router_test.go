package router

import (
	"testing"

	"github.com/acacalc/acacalc/pkg/config"
)

func TestResolveNoProviders(t *testing.T) {
	if _, err := New(config.NarrativeConfig{}).Resolve(); err == nil {
		t.Error("expected error with no providers")
	}
}

func TestResolveDeclarationOrder(t *testing.T) {
	cfg := config.NarrativeConfig{
		Providers: []config.ProviderConfig{
			{Name: "anthropic", Type: "anthropic", Model: "claude-sonnet-4-20250514"},
			{Name: "openai", Type: "openai", Model: "gpt-4o"},
		},
	}
	routes, err := New(cfg).Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Provider.Name != "anthropic" || routes[0].Model != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected first route: %+v", routes[0])
	}
	if routes[1].Provider.Name != "openai" || routes[1].Model != "gpt-4o" {
		t.Errorf("unexpected second route: %+v", routes[1])
	}
}

func TestResolveWithFallback(t *testing.T) {
	cfg := config.NarrativeConfig{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com", APIKey: "sk-1", Model: "gpt-4o"},
			{Name: "anthropic", URL: "https://api.anthropic.com", APIKey: "sk-2", Model: "claude-sonnet-4-20250514"},
		},
		Fallback: []config.RouteTarget{
			{Provider: "anthropic"},
			{Provider: "missing"},
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
	}
	routes, err := New(cfg).Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Model != "claude-sonnet-4-20250514" || routes[0].Provider.Name != "anthropic" {
		t.Errorf("unexpected first route: %+v", routes[0])
	}
	if routes[1].Model != "gpt-4o-mini" || routes[1].Provider.Name != "openai" {
		t.Errorf("unexpected second route: %+v", routes[1])
	}
}

func TestResolveFallbackAllUnknown(t *testing.T) {
	cfg := config.NarrativeConfig{
		Providers: []config.ProviderConfig{{Name: "openai"}},
		Fallback:  []config.RouteTarget{{Provider: "nope"}},
	}
	if _, err := New(cfg).Resolve(); err == nil {
		t.Error("expected error when every fallback target is unknown")
	}
}

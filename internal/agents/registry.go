package agents

import (
	"fmt"
	"net/http"
	"time"

	"github.com/andrew/mentor-gateway/internal/config"
)

// Factory builds a provider from its options
type Factory func(Options) Provider

// Registry holds provider instances in routing priority order
type Registry struct {
	providers []Provider
}

// NewRegistry creates a provider registry from config.
// Providers keep the order they appear in the config; disabled ones are skipped.
func NewRegistry(cfg *config.Config, factories map[string]Factory, httpClient *http.Client, now func() time.Time) (*Registry, error) {
	r := &Registry{}

	var enabled []config.ProviderConfig
	for _, pc := range cfg.Providers {
		if pc.IsEnabled() {
			enabled = append(enabled, pc)
		}
	}

	for _, pc := range enabled {
		factory, ok := factories[pc.Name]
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s", pc.Name)
		}
		r.providers = append(r.providers, factory(Options{
			Name:              pc.Name,
			APIKey:            pc.APIKey,
			BaseURL:           pc.BaseURL,
			Model:             pc.Model,
			Timeout:           pc.Timeout,
			DailyTokenLimit:   pc.DailyTokenLimit,
			RequestsPerMinute: pc.RequestsPerMinute,
			// A lone provider has no fallback behind it, so it degrades on its own
			DegradeInPlace: len(enabled) == 1,
			HTTPClient:     httpClient,
			Now:            now,
		}))
	}

	return r, nil
}

// All returns providers in priority order
func (r *Registry) All() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Names returns provider names in priority order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

package platform

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Platform names
const (
	PlatformPChome = "pchome"
	PlatformMomo   = "momo"
	PlatformYahoo  = "yahoo"
)

// Registry looks scrapers up by platform name
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]ingestion.Scraper
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]ingestion.Scraper)}
}

// NewDefaultRegistry registers the live platform scrapers from cfg
func NewDefaultRegistry(cfg config.ScrapersConfig, logger *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewPChomeScraper(PChomeConfigFrom(cfg), logger))
	r.Register(NewMomoScraper(MomoConfigFrom(cfg), logger))
	r.Register(NewYahooScraper(YahooConfigFrom(cfg), logger))
	return r
}

// Register adds or replaces the scraper for its platform
func (r *Registry) Register(s ingestion.Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[strings.ToLower(s.Platform())] = s
}

// Get returns the scraper for platform
func (r *Registry) Get(platform string) (ingestion.Scraper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	return s, nil
}

// All returns every scraper ordered by platform name
func (r *Registry) All() []ingestion.Scraper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scrapers))
	for name := range r.scrapers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]ingestion.Scraper, len(names))
	for i, name := range names {
		out[i] = r.scrapers[name]
	}
	return out
}

// Platforms returns the registered platform names in order
func (r *Registry) Platforms() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Platform()
	}
	return names
}

package integrations

import (
	"context"
	"fmt"
	"sort"

	"loancounselor-backend/internal/models"
	integration_models "loancounselor-backend/internal/models/integrations"

	"github.com/rs/zerolog/log"
)

// Names of the built-in lender sources.
const (
	SourceStatic = "static"
	SourceFile   = "file"
	SourceNotion = "notion"
)

// LenderSource loads the lender catalogue from somewhere.
type LenderSource interface {
	// Load returns the validated catalogue.
	Load(ctx context.Context) ([]models.Lender, error)
}

// ConnectionTester is implemented by sources and notifiers that talk to an external service.
type ConnectionTester interface {
	TestConnection(ctx context.Context) (*integration_models.TestConnectionResult, error)
}

// Registry holds the mapping between source names and their LenderSource implementations.
type Registry struct {
	sources map[string]LenderSource
}

// NewRegistry creates a new source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]LenderSource),
	}
}

// Register adds a source to the registry.
func (r *Registry) Register(name string, source LenderSource) {
	if _, exists := r.sources[name]; exists {
		log.Warn().Str("source", name).Msg("[SourceRegistry] Source is already registered. Overwriting.")
	}
	r.sources[name] = source
	log.Debug().Str("source", name).Msg("[SourceRegistry] Registered lender source")
}

// Get retrieves a source by name.
func (r *Registry) Get(name string) (LenderSource, error) {
	source, exists := r.sources[name]
	if !exists {
		return nil, fmt.Errorf("no lender source registered with name: %s", name)
	}
	return source, nil
}

// MustGet retrieves a source, panicking if not found.
// Useful during initialization if a source is expected to be present.
func (r *Registry) MustGet(name string) LenderSource {
	source, err := r.Get(name)
	if err != nil {
		panic(fmt.Sprintf("FATAL [SourceRegistry] %v", err))
	}
	return source
}

// Names lists registered sources in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

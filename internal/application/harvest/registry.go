package harvest

import (
	"sort"
	"sync"

	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Connector registry
// ──────────────────────────────────────────────────────────────────────────

// Connectors bundles one source's upstream clients: discovery search and
// per-record detail fetch. Both are required; a source that cannot discover
// or enrich can never complete a run.
type Connectors struct {
	Search SearchClient
	Detail DetailClient
}

// ConnectorRegistry maps sources to their upstream clients. Connector
// modules live outside this repository; a deployment links them into the
// binary and registers them at init time, the same way database/sql drivers
// announce themselves.
type ConnectorRegistry struct {
	mu       sync.RWMutex
	bySource map[rtypes.Source]Connectors
}

// NewConnectorRegistry returns an empty registry.
func NewConnectorRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{bySource: make(map[rtypes.Source]Connectors)}
}

// Register installs the connectors for source. It panics on a nil client or
// a second registration for the same source: both are wiring bugs that must
// surface at process start, not at run time.
func (r *ConnectorRegistry) Register(source rtypes.Source, c Connectors) {
	if c.Search == nil {
		panic("harvest: Register " + string(source) + " with nil Search client")
	}
	if c.Detail == nil {
		panic("harvest: Register " + string(source) + " with nil Detail client")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.bySource[source]; dup {
		panic("harvest: Register called twice for source " + string(source))
	}
	r.bySource[source] = c
}

// Lookup returns the connectors registered for source.
func (r *ConnectorRegistry) Lookup(source rtypes.Source) (Connectors, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySource[source]
	return c, ok
}

// Sources lists the registered sources in stable order.
func (r *ConnectorRegistry) Sources() []rtypes.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rtypes.Source, 0, len(r.bySource))
	for source := range r.bySource {
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// defaultRegistry backs the package-level registration surface.
var defaultRegistry = NewConnectorRegistry()

// RegisterConnectors installs the connectors for source on the default
// registry. Connector modules call this from an init function.
func RegisterConnectors(source rtypes.Source, c Connectors) {
	defaultRegistry.Register(source, c)
}

// DefaultConnectors returns the registry populated by RegisterConnectors.
func DefaultConnectors() *ConnectorRegistry {
	return defaultRegistry
}

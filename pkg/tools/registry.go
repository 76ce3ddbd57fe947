package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/config"
	"researchcopilot/pkg/embed"
	"researchcopilot/pkg/knowledge"
)

// Capability names.
const (
	ToolNTRSSearch       = "ntrs_search"
	ToolWebSearch        = "web_search"
	ToolWebFetch         = "web_fetch"
	ToolWikipediaLookup  = "wikipedia_lookup"
	ToolWikipediaExtract = "wikipedia_extract"
	ToolRAGRetrieve      = "rag_retrieve"
)

// FetchCache stores fetched documents between interactions.
type FetchCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ChunkIndex answers nearest-neighbour queries over stored chunks.
type ChunkIndex interface {
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]knowledge.Match, error)
	Close() error
}

// Deps carries the shared, immutable collaborators capabilities are built from.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Deps struct {
	HTTPClient *http.Client
	Sources    config.SourcesConfig
	Search     config.SearchConfig
	Retry      retry.Config
	// Cache is optional; web_fetch works uncached without it.
	Cache    FetchCache
	Embedder embed.Embedder
	// OpenIndex opens the chunk index stored at an index location.
	OpenIndex func(location string) (ChunkIndex, error)
}

// DepsFromConfig builds Deps from the runtime configuration. Cache, Embedder and
// OpenIndex are left for the caller to wire.
func DepsFromConfig(cfg *config.Config) *Deps {
	return &Deps{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Sources:    cfg.Sources,
		Search:     cfg.Search,
		Retry: retry.Config{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: cfg.Retry.BackoffFactor,
			Jitter:        true,
		},
	}
}

func (d *Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

func (d *Deps) policy() *retry.Policy {
	cfg := d.Retry
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig
	}
	return retry.NewPolicy(cfg, nil)
}

func (d *Deps) userAgent() string {
	if d.Sources.UserAgent != "" {
		return d.Sources.UserAgent
	}
	return "research-copilot/1.0"
}

// Factory builds a capability from the shared dependencies.
type Factory func(deps *Deps) (Capability, error)

// Descriptor describes one registered capability.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Descriptor struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	InputSchema  *jsonschema.Schema `json:"input_schema"`
	OutputSchema *jsonschema.Schema `json:"output_schema,omitempty"`

	factory  Factory
	resolved *jsonschema.Resolved
}

// ValidateInput applies schema defaults to input and validates it.
func (d *Descriptor) ValidateInput(input map[string]any) (map[string]any, error) {
	return prepareInput(d.InputSchema, d.resolved, input)
}

// RawInputSchema returns the input schema as JSON.
func (d *Descriptor) RawInputSchema() json.RawMessage {
	data, err := json.Marshal(d.InputSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

// registry maps capability names to descriptors. It is sealed before first use.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type registry struct {
	mu     sync.RWMutex
	sealed bool
	order  []string
	tools  map[string]*Descriptor
}

func newRegistry() *registry {
	return &registry{tools: make(map[string]*Descriptor)}
}

//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = newRegistry()

func (r *registry) register(desc Descriptor, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic(fmt.Sprintf("%v - cannot register capability '%s'", ErrRegistrySealed, desc.Name))
	}
	if _, dup := r.tools[desc.Name]; dup {
		panic(fmt.Sprintf("capability '%s' registered twice", desc.Name))
	}
	resolved, err := desc.InputSchema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("capability '%s' has an invalid input schema: %v", desc.Name, err))
	}
	desc.factory = factory
	desc.resolved = resolved
	r.tools[desc.Name] = &desc
	r.order = append(r.order, desc.Name)
}

func (r *registry) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *registry) lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.tools[name]
	return desc, ok
}

func (r *registry) list() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.tools[name])
	}
	return out
}

// Register adds a capability to the global registry.
// Panics if called after the registry is sealed or if the input schema does not resolve.
func Register(desc Descriptor, factory Factory) {
	globalRegistry.register(desc, factory)
}

// Seal prevents further registrations. Called automatically by NewProvider.
func Seal() {
	globalRegistry.seal()
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (*Descriptor, bool) {
	return globalRegistry.lookup(name)
}

// ListTools returns all descriptors in registration order.
func ListTools() []Descriptor {
	return globalRegistry.list()
}

// Names returns the registered capability names in registration order.
func Names() []string {
	descs := ListTools()
	names := make([]string, len(descs))
	for i := range descs {
		names[i] = descs[i].Name
	}
	return names
}

// Provider creates capability instances lazily from a sealed registry.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Provider struct {
	reg   *registry
	deps  *Deps
	tools map[string]Capability
	mu    sync.Mutex
}

// NewProvider creates a provider over the global registry and seals it.
func NewProvider(deps *Deps) *Provider {
	Seal()
	return newProviderFor(globalRegistry, deps)
}

func newProviderFor(reg *registry, deps *Deps) *Provider {
	if deps == nil {
		deps = &Deps{}
	}
	return &Provider{reg: reg, deps: deps, tools: make(map[string]Capability)}
}

// Descriptor returns the descriptor for name.
func (p *Provider) Descriptor(name string) (*Descriptor, bool) {
	return p.reg.lookup(name)
}

// Get returns the capability instance for name, creating it on first use.
func (p *Provider) Get(name string) (Capability, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if capability, ok := p.tools[name]; ok {
		return capability, nil
	}
	desc, ok := p.reg.lookup(name)
	if !ok {
		return nil, fmt.Errorf("capability '%s' not registered", name)
	}
	capability, err := desc.factory(p.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create capability '%s': %w", name, err)
	}
	p.tools[name] = capability
	return capability, nil
}

// List returns all descriptors in registration order.
func (p *Provider) List() []Descriptor {
	return p.reg.list()
}

// Names returns the capability names in registration order.
func (p *Provider) Names() []string {
	descs := p.List()
	names := make([]string, len(descs))
	for i := range descs {
		names[i] = descs[i].Name
	}
	return names
}

// GenerateToolDocumentation renders a markdown list of capabilities with their input schemas.
func GenerateToolDocumentation(descs []Descriptor) string {
	if len(descs) == 0 {
		return "No tools available"
	}

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for i := range descs {
		fmt.Fprintf(&doc, "- **%s** - %s\n", descs[i].Name, descs[i].Description)
		fmt.Fprintf(&doc, "  input: `%s`\n", descs[i].RawInputSchema())
	}
	return doc.String()
}

// init registers every research capability.
//
//nolint:gochecknoinits // Factory pattern requires init() for capability registration
func init() {
	Register(Descriptor{
		Name:         ToolNTRSSearch,
		Description:  "Search the NASA Technical Reports Server for reports, papers and citations.",
		InputSchema:  ntrsInputSchema(),
		OutputSchema: ntrsOutputSchema(),
	}, newNTRSSearch)

	Register(Descriptor{
		Name:         ToolWebSearch,
		Description:  "Web search via Tavily (REST or MCP). Returns deduped results with title, url, snippet, score.",
		InputSchema:  webSearchInputSchema(),
		OutputSchema: webSearchOutputSchema(),
	}, newWebSearch)

	Register(Descriptor{
		Name:         ToolWebFetch,
		Description:  "Fetch a URL and return its readable text (HTML or PDF).",
		InputSchema:  webFetchInputSchema(),
		OutputSchema: webFetchOutputSchema(),
	}, newWebFetch)

	Register(Descriptor{
		Name:         ToolWikipediaLookup,
		Description:  "Find Wikipedia pages for a query and return short summaries.",
		InputSchema:  wikipediaLookupInputSchema(),
		OutputSchema: wikipediaLookupOutputSchema(),
	}, newWikipediaLookup)

	Register(Descriptor{
		Name:         ToolWikipediaExtract,
		Description:  "Extract named sections (or the lead) from a Wikipedia page.",
		InputSchema:  wikipediaExtractInputSchema(),
		OutputSchema: wikipediaExtractOutputSchema(),
	}, newWikipediaExtract)

	Register(Descriptor{
		Name:         ToolRAGRetrieve,
		Description:  "Retrieve the most relevant chunks from the local research corpus.",
		InputSchema:  ragInputSchema(),
		OutputSchema: ragOutputSchema(),
	}, newRAGRetrieve)
}

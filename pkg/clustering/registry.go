// Package clustering selects among the community detection objectives
// available for the subject side of a bipartite graph.
package clustering

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

// Method names
const (
	MethodMDL        = "mdl"
	MethodModularity = "modularity"
	MethodSBM        = "sbm"
)

// Status tags a method outcome.
type Status int

const (
	// StatusOK means the method ran and the partition fields are set.
	StatusOK Status = iota
	// StatusNotImplemented means the method is reserved but computes
	// nothing; the partition fields are empty.
	StatusNotImplemented
)

func (s Status) String() string {
	if s == StatusNotImplemented {
		return "not_implemented"
	}
	return "ok"
}

// MarshalText encodes the status as its label.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a label written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*s = StatusOK
	case "not_implemented":
		*s = StatusNotImplemented
	default:
		return errs.Invalid("clustering", "UnmarshalText", "unknown status %q", string(text))
	}
	return nil
}

// Options configures one clustering call. Seed, when nil, takes the
// method's configured default.
type Options struct {
	Method       string         `json:"method"`
	FixB         int            `json:"fix_b"`
	Seed         *uint64        `json:"seed,omitempty"`
	Subgraphs    bool           `json:"subgraphs"`
	ObjectLabels bool           `json:"object_labels"`
	Logger       zerolog.Logger `json:"-"`
}

// Result is the outcome of a clustering method.
type Result struct {
	Method  string `json:"method"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`

	Blocks     int            `json:"blocks"`
	Assignment map[string]int `json:"assignment"`
	// DescriptionLength and CompressionRatio are set by the mdl method.
	DescriptionLength float64 `json:"description_length"`
	CompressionRatio  float64 `json:"compression_ratio"`
	// Modularity is set by the modularity method.
	Modularity float64 `json:"modularity"`

	Subgraphs    map[int]*bipartite.Graph `json:"-"`
	ObjectBlocks map[string]int           `json:"object_blocks,omitempty"`

	ProcessingTimeMS int64 `json:"processing_time_ms"`
}

// Implemented reports whether the method produced a partition.
func (r *Result) Implemented() bool { return r.Status == StatusOK }

// Method is one clustering objective.
type Method interface {
	// Name returns the method name
	Name() string

	// ValidateParameters validates the options for this method
	ValidateParameters(g *bipartite.Graph, opts Options) error

	// Run executes the method
	Run(ctx context.Context, g *bipartite.Graph, opts Options) (*Result, error)
}

// Registry manages available methods
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewRegistry creates a registry holding the built-in methods.
func NewRegistry() *Registry {
	registry := &Registry{methods: make(map[string]Method)}

	registry.Register(NewMDLMethod(nil))
	registry.Register(NewModularityMethod(nil))
	registry.Register(sbmMethod{})

	return registry
}

// Register adds a method to the registry, replacing one of the same name.
func (r *Registry) Register(m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Name()] = m
}

// Get retrieves a method by name
func (r *Registry) Get(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// List returns all method names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Partition runs the named method on g. An empty method name selects
// mdl; an unknown one fails with an unsupported-parameter error.
func (r *Registry) Partition(ctx context.Context, g *bipartite.Graph, opts Options) (*Result, error) {
	name := opts.Method
	if name == "" {
		name = MethodMDL
	}
	m, ok := r.Get(name)
	if !ok {
		return nil, errs.Unsupported("clustering", "Partition", "method", opts.Method)
	}
	if g == nil {
		g = bipartite.Empty()
	}
	if err := m.ValidateParameters(g, opts); err != nil {
		return nil, err
	}
	return m.Run(ctx, g, opts)
}

// PartitionEdges builds a graph from triples, subjects first, and
// partitions it.
func (r *Registry) PartitionEdges(ctx context.Context, triples []bipartite.Triple, opts Options) (*Result, error) {
	g, err := bipartite.FromTriples(triples)
	if err != nil {
		return nil, err
	}
	return r.Partition(ctx, g, opts)
}

var defaultRegistry = NewRegistry()

// Partition runs a method from the default registry.
func Partition(ctx context.Context, g *bipartite.Graph, opts Options) (*Result, error) {
	return defaultRegistry.Partition(ctx, g, opts)
}

// PartitionEdges runs a method from the default registry on an edge list.
func PartitionEdges(ctx context.Context, triples []bipartite.Triple, opts Options) (*Result, error) {
	return defaultRegistry.PartitionEdges(ctx, triples, opts)
}

// Methods lists the default registry's method names.
func Methods() []string {
	return defaultRegistry.List()
}

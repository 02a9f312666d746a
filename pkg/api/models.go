package api

import (
	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/clustering"
	"github.com/gilchrisn/hina-service/pkg/significance"
)

// TableRequest carries uploaded records back to the analysis endpoints.
type TableRequest struct {
	Columns []string   `json:"columns" validate:"required,min=1,dive,required"`
	Rows    [][]string `json:"rows" validate:"required"`
	// GroupColumn defaults to "group". Group "All" or empty keeps every
	// row.
	GroupColumn string `json:"group_column"`
	Group       string `json:"group"`
}

// PruningRequest selects edge significance pruning.
type PruningRequest struct {
	Mode       string   `json:"mode" validate:"omitempty,oneof=none custom"`
	Alpha      *float64 `json:"alpha" validate:"omitempty,gte=0,lte=1"`
	FixDeg     *string  `json:"fix_deg"`
	Correction string   `json:"correction" validate:"omitempty,oneof=none bonferroni"`
}

// NetworkRequest builds and renders a bipartite (or, with two object
// columns, tripartite) network.
type NetworkRequest struct {
	TableRequest
	Subject   []string       `json:"subject" validate:"required,min=1,dive,required"`
	Object    []string       `json:"object" validate:"required,min=1,max=2,dive,required"`
	Weight    string         `json:"weight"`
	Attribute string         `json:"attribute"`
	Pruning   PruningRequest `json:"pruning"`
	Layout    string         `json:"layout" validate:"omitempty,oneof=bipartite circular clustered spring"`
	Seed      *uint64        `json:"seed"`
}

// ClusterRequest adds the clustering parameters to NetworkRequest.
type ClusterRequest struct {
	NetworkRequest
	NumberCluster int    `json:"number_cluster" validate:"gte=0"`
	Method        string `json:"method"`
}

// QuantityRequest asks for per-subject quantity and diversity.
type QuantityRequest struct {
	TableRequest
	Subject        []string `json:"subject" validate:"required,min=1,dive,required"`
	Object         []string `json:"object" validate:"required,min=1,max=2,dive,required"`
	Weight         string   `json:"weight"`
	Attribute      string   `json:"attribute"`
	ByAttribute    bool     `json:"by_attribute"`
	GroupNormalize bool     `json:"group_normalize"`
}

// UploadResponse describes an uploaded table.
type UploadResponse struct {
	Filename string     `json:"filename"`
	Columns  []string   `json:"columns"`
	Groups   []string   `json:"groups"`
	Rows     [][]string `json:"rows"`
}

// Element is a node or edge in the format graph renderers consume.
type Element struct {
	Data     ElementData `json:"data"`
	Position *Point      `json:"position,omitempty"`
	Classes  string      `json:"classes,omitempty"`
}

// ElementData is set for nodes (ID, Color) or edges (Source, Target).
type ElementData struct {
	ID      string   `json:"id,omitempty"`
	Label   string   `json:"label"`
	Color   string   `json:"color,omitempty"`
	Cluster string   `json:"cluster,omitempty"`
	Source  string   `json:"source,omitempty"`
	Target  string   `json:"target,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
}

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NetworkResponse is the rendered network plus the pruning outcome.
type NetworkResponse struct {
	Elements         []Element            `json:"elements"`
	SignificantEdges []bipartite.Triple   `json:"significant_edges,omitempty"`
	Significance     *significance.Result `json:"significance,omitempty"`
}

// ClusterResponse is the rendered network with block labels.
type ClusterResponse struct {
	Elements      []Element          `json:"elements"`
	ClusterLabels map[string]int     `json:"cluster_labels"`
	Clustering    *clustering.Result `json:"clustering"`
}

// MethodsResponse lists the clustering methods.
type MethodsResponse struct {
	Methods []string `json:"methods"`
	Default string   `json:"default"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/clustering"
	"github.com/gilchrisn/hina-service/pkg/individual"
	"github.com/gilchrisn/hina-service/pkg/layout"
	"github.com/gilchrisn/hina-service/pkg/parser"
	"github.com/gilchrisn/hina-service/pkg/significance"
)

const (
	defaultGroupColumn = "group"

	subjectColor = "grey"
	objectColor  = "blue"

	// Layout coordinates in [-1, 1] are mapped onto a 600x600 canvas.
	canvasScale  = 400
	canvasOffset = 300
)

// Upload parses a CSV or XLSX file sent as multipart field "file".
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	logger.Info().Msg("Upload request received")

	limit := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		logger.Error().Err(err).Msg("Failed to parse multipart form")
		writeErrorResponse(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, "Missing required file: file", err)
		return
	}
	defer file.Close()

	table, err := parser.Read(header.Filename, file)
	if err != nil {
		s.fail(w, r, "Failed to read uploaded file", err)
		return
	}

	groupColumn := r.FormValue("group_column")
	if groupColumn == "" {
		groupColumn = defaultGroupColumn
	}
	groups := table.Groups(groupColumn)
	if _, ok := table.Index(groupColumn); ok {
		groups = append([]string{parser.AllGroups}, groups...)
	}

	logger.Info().
		Str("filename", header.Filename).
		Int("columns", len(table.Columns)).
		Int("rows", len(table.Rows)).
		Msg("File uploaded successfully")

	writeSuccessResponse(w, r, "File uploaded successfully", UploadResponse{
		Filename: header.Filename,
		Columns:  table.Columns,
		Groups:   groups,
		Rows:     table.Rows,
	})
}

// BuildNetwork builds the network, optionally prunes it to its
// significant edges and lays it out.
func (s *Server) BuildNetwork(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if !s.decode(w, r, &req) {
		return
	}

	g, err := s.buildGraph(req.TableRequest, parser.GraphSpec{
		Subject:   req.Subject,
		Object:    req.Object,
		Weight:    req.Weight,
		Attribute: req.Attribute,
	})
	if err != nil {
		s.fail(w, r, "Failed to build network", err)
		return
	}

	g, sig, err := s.prune(r, g, req.Pruning, req.Subject, req.Object)
	if err != nil {
		s.fail(w, r, "Failed to prune network", err)
		return
	}

	name := req.Layout
	if name == "" {
		name = s.cfg.Layout()
	}
	pos, err := layout.Compute(g, name, layout.Options{Seed: s.seed(req.Seed)})
	if err != nil {
		s.fail(w, r, "Failed to lay out network", err)
		return
	}

	response := NetworkResponse{Elements: elements(g, pos, nil)}
	if sig != nil {
		response.SignificantEdges = sig.SignificantEdges
		response.Significance = sig
	}
	writeSuccessResponse(w, r, "Network built successfully", response)
}

// BuildClusters builds the network and partitions its subjects.
func (s *Server) BuildClusters(w http.ResponseWriter, r *http.Request) {
	var req ClusterRequest
	if !s.decode(w, r, &req) {
		return
	}
	logger := zerolog.Ctx(r.Context())

	g, err := s.buildGraph(req.TableRequest, parser.GraphSpec{
		Subject:   req.Subject,
		Object:    req.Object,
		Weight:    req.Weight,
		Attribute: req.Attribute,
	})
	if err != nil {
		s.fail(w, r, "Failed to build network", err)
		return
	}

	g, _, err = s.prune(r, g, req.Pruning, req.Subject, req.Object)
	if err != nil {
		s.fail(w, r, "Failed to prune network", err)
		return
	}

	method := req.Method
	if method == "" {
		method = s.cfg.Method()
	}
	ctx, cancel := s.analysisContext(r)
	defer cancel()
	result, err := s.registry.Partition(ctx, g, clustering.Options{
		Method:       method,
		FixB:         req.NumberCluster,
		Seed:         req.Seed,
		ObjectLabels: true,
		Logger:       *logger,
	})
	if err != nil {
		s.fail(w, r, "Clustering failed", err)
		return
	}
	s.metrics.observePartition(result.Method, result.Status.String(), result.Blocks)

	name := req.Layout
	if name == "" {
		name = layout.Clustered
	}
	pos, err := layout.Compute(g, name, layout.Options{Blocks: result.Assignment, Seed: s.seed(req.Seed)})
	if err != nil {
		s.fail(w, r, "Failed to lay out network", err)
		return
	}

	var labels map[string]int
	if result.Implemented() {
		labels = make(map[string]int, len(result.Assignment)+len(result.ObjectBlocks))
		for id, b := range result.Assignment {
			labels[id] = b
		}
		for id, b := range result.ObjectBlocks {
			labels[id] = b
		}
	}

	message := "Clusters built successfully"
	if !result.Implemented() {
		message = fmt.Sprintf("Clustering method %q is not implemented", result.Method)
	}
	writeSuccessResponse(w, r, message, ClusterResponse{
		Elements:      elements(g, pos, labels),
		ClusterLabels: result.Assignment,
		Clustering:    result,
	})
}

// QuantityDiversity returns per-subject quantity and diversity.
func (s *Server) QuantityDiversity(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if !s.decode(w, r, &req) {
		return
	}

	g, err := s.buildGraph(req.TableRequest, parser.GraphSpec{
		Subject:   req.Subject,
		Object:    req.Object,
		Weight:    req.Weight,
		Attribute: req.Attribute,
	})
	if err != nil {
		s.fail(w, r, "Failed to build network", err)
		return
	}

	result := individual.QuantityAndDiversity(g, individual.Options{
		ByAttribute:    req.ByAttribute,
		GroupNormalize: req.GroupNormalize,
	})
	writeSuccessResponse(w, r, "Quantity and diversity computed successfully", result)
}

// ListMethods lists the registered clustering methods.
func (s *Server) ListMethods(w http.ResponseWriter, r *http.Request) {
	writeSuccessResponse(w, r, "Methods retrieved successfully", MethodsResponse{
		Methods: s.registry.List(),
		Default: s.cfg.Method(),
	})
}

// HealthCheck reports liveness.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeSuccessResponse(w, r, "Service is healthy", HealthResponse{
		Status:  "healthy",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// decode reads a JSON body into dst and validates it, writing the error
// response itself when either step fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			writeValidationErrorResponse(w, r, validationMessages(fieldErrs))
			return false
		}
		writeErrorResponse(w, r, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func validationMessages(fieldErrs validator.ValidationErrors) map[string]string {
	messages := make(map[string]string, len(fieldErrs))
	for _, e := range fieldErrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			messages[field] = fmt.Sprintf("%s is required", field)
		case "min":
			messages[field] = fmt.Sprintf("%s must have at least %s entries", field, e.Param())
		case "max":
			messages[field] = fmt.Sprintf("%s must have at most %s entries", field, e.Param())
		case "gte", "lte":
			messages[field] = fmt.Sprintf("%s is out of range", field)
		case "oneof":
			messages[field] = fmt.Sprintf("%s must be one of: %s", field, e.Param())
		default:
			messages[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return messages
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	event := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Msg(message)
	writeErrorResponse(w, r, status, message, err)
}

func (s *Server) buildGraph(req TableRequest, spec parser.GraphSpec) (*bipartite.Graph, error) {
	table := &parser.Table{Columns: req.Columns, Rows: req.Rows}
	groupColumn := req.GroupColumn
	if groupColumn == "" {
		groupColumn = defaultGroupColumn
	}
	filtered, err := table.FilterGroup(groupColumn, req.Group)
	if err != nil {
		return nil, err
	}
	if _, ok := table.Index(groupColumn); ok {
		spec.Group = groupColumn
	}
	return parser.BuildGraph(filtered, spec)
}

// prune applies significance pruning when the request asks for it.
// Unset fields fall back to the configured defaults.
func (s *Server) prune(r *http.Request, g *bipartite.Graph, p PruningRequest, subject, object []string) (*bipartite.Graph, *significance.Result, error) {
	if p.Mode != "custom" {
		return g, nil, nil
	}

	columns := make(map[string]bipartite.Side, len(subject)+len(object))
	for _, c := range subject {
		columns[c] = bipartite.SideSubject
	}
	for _, c := range object {
		columns[c] = bipartite.SideObject
	}

	opts := significance.Options{
		Alpha:      s.cfg.Alpha(),
		FixDeg:     s.cfg.FixDeg(),
		Columns:    columns,
		Correction: significance.Correction(s.cfg.Correction()),
		Logger:     *zerolog.Ctx(r.Context()),
	}
	if p.Alpha != nil {
		opts.Alpha = *p.Alpha
	}
	if p.FixDeg != nil {
		opts.FixDeg = *p.FixDeg
	}
	if p.Correction != "" {
		opts.Correction = significance.Correction(p.Correction)
	}

	result, err := significance.Prune(g, opts)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.observeSignificance(len(result.Tests), len(result.SignificantEdges))
	return result.Pruned, result, nil
}

func (s *Server) seed(requested *uint64) uint64 {
	if requested != nil {
		return *requested
	}
	return s.cfg.RandomSeed()
}

// elements converts g into renderer elements. labels, when non-nil, sets
// each node's cluster; nodes without a label get "-1".
func elements(g *bipartite.Graph, pos map[string]layout.Position, labels map[string]int) []Element {
	out := make([]Element, 0, g.NumNodes()+g.NumEdges())

	addNode := func(n bipartite.Node, color string) {
		el := Element{
			Data:    ElementData{ID: n.ID, Label: n.ID, Color: color},
			Classes: n.Side.String(),
		}
		if labels != nil {
			el.Data.Cluster = "-1"
			if b, ok := labels[n.ID]; ok {
				el.Data.Cluster = strconv.Itoa(b)
			}
		}
		if p, ok := pos[n.ID]; ok {
			el.Position = &Point{X: p.X*canvasScale + canvasOffset, Y: p.Y*canvasScale + canvasOffset}
		}
		out = append(out, el)
	}
	for _, n := range g.Subjects() {
		addNode(n, subjectColor)
	}
	for _, n := range g.Objects() {
		addNode(n, objectColor)
	}

	for _, t := range g.Triples() {
		weight := t.Weight
		out = append(out, Element{Data: ElementData{
			Source: t.U,
			Target: t.V,
			Weight: &weight,
			Label:  strconv.FormatFloat(weight, 'g', -1, 64),
		}})
	}
	return out
}

// analysisContext bounds a partition by the configured analysis timeout.
func (s *Server) analysisContext(r *http.Request) (context.Context, context.CancelFunc) {
	if timeout := s.cfg.AnalysisTimeout(); timeout > 0 {
		return context.WithTimeout(r.Context(), timeout)
	}
	return context.WithCancel(r.Context())
}

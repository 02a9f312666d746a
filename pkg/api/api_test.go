package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hina-service/pkg/config"
)

var (
	testColumns = []string{"student", "task", "group", "code"}
	testRows    = [][]string{
		{"Alice", "ask", "A", "cognitive"},
		{"Alice", "ask", "A", "cognitive"},
		{"Alice", "evaluate", "A", "metacognitive"},
		{"Bob", "answer", "B", "cognitive"},
		{"Bob", "answer", "B", "cognitive"},
		{"Bob", "answer", "B", "cognitive"},
		{"Charlie", "monitor", "B", "metacognitive"},
	}
)

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"request_id"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Set("logging.level", "disabled")
	return NewServer(cfg, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func networkBody(extra map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"columns": testColumns,
		"rows":    testRows,
		"subject": []string{"student"},
		"object":  []string{"task"},
		"group":   "All",
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec, env := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), env.RequestID)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestListMethods(t *testing.T) {
	s := newTestServer(t)
	rec, env := doJSON(t, s, http.MethodGet, "/api/v1/methods", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var methods MethodsResponse
	require.NoError(t, json.Unmarshal(env.Data, &methods))
	assert.Equal(t, []string{"mdl", "modularity", "sbm"}, methods.Methods)
	assert.Equal(t, "mdl", methods.Default)
}

func TestBuildNetwork(t *testing.T) {
	s := newTestServer(t)
	rec, env := doJSON(t, s, http.MethodPost, "/api/v1/networks/hina", networkBody(nil))
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var network NetworkResponse
	require.NoError(t, json.Unmarshal(env.Data, &network))
	assert.Len(t, network.Elements, 7+4, "seven nodes and four edges")
	assert.Nil(t, network.Significance)

	for _, el := range network.Elements {
		if el.Data.ID == "Alice" {
			assert.Equal(t, "grey", el.Data.Color)
			assert.Equal(t, "subject", el.Classes)
			require.NotNil(t, el.Position)
		}
		if el.Data.Source == "Alice" && el.Data.Target == "ask" {
			require.NotNil(t, el.Data.Weight)
			assert.Equal(t, 2.0, *el.Data.Weight)
			assert.Equal(t, "2", el.Data.Label)
		}
	}
}

func TestBuildNetwork_Pruning(t *testing.T) {
	s := newTestServer(t)

	rec, env := doJSON(t, s, http.MethodPost, "/api/v1/networks/hina", networkBody(map[string]interface{}{
		"pruning": map[string]interface{}{"mode": "custom", "alpha": 1.0, "fix_deg": "student"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var network NetworkResponse
	require.NoError(t, json.Unmarshal(env.Data, &network))
	require.NotNil(t, network.Significance)
	assert.Len(t, network.SignificantEdges, 4, "alpha 1 keeps every edge")
	assert.Equal(t, "subject", network.Significance.NullModel.String())

	rec, env = doJSON(t, s, http.MethodPost, "/api/v1/networks/hina", networkBody(map[string]interface{}{
		"pruning": map[string]interface{}{"mode": "custom", "alpha": 0.0},
	}))
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	network = NetworkResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &network))
	assert.Empty(t, network.SignificantEdges)
}

func TestBuildNetwork_Errors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"missing subject", map[string]interface{}{"columns": testColumns, "rows": testRows, "object": []string{"task"}}, http.StatusBadRequest},
		{"bad layout", networkBody(map[string]interface{}{"layout": "radial"}), http.StatusBadRequest},
		{"alpha out of range", networkBody(map[string]interface{}{"pruning": map[string]interface{}{"mode": "custom", "alpha": 1.5}}), http.StatusBadRequest},
		{"unknown column", networkBody(map[string]interface{}{"subject": []string{"name"}}), http.StatusBadRequest},
		{"unknown group", networkBody(map[string]interface{}{"group_column": "cohort", "group": "A"}), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doJSON(t, s, http.MethodPost, "/api/v1/networks/hina", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/networks/hina", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildClusters(t *testing.T) {
	s := newTestServer(t)
	rec, env := doJSON(t, s, http.MethodPost, "/api/v1/networks/clusters", networkBody(map[string]interface{}{
		"number_cluster": 2,
		"seed":           7,
	}))
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var clusters ClusterResponse
	require.NoError(t, json.Unmarshal(env.Data, &clusters))
	require.NotNil(t, clusters.Clustering)
	assert.Equal(t, "mdl", clusters.Clustering.Method)
	assert.Equal(t, 2, clusters.Clustering.Blocks)
	assert.Len(t, clusters.ClusterLabels, 3)

	for _, el := range clusters.Elements {
		if el.Data.ID != "" {
			assert.NotEqual(t, "", el.Data.Cluster, "node %s", el.Data.ID)
		}
	}
}

func TestBuildClusters_Methods(t *testing.T) {
	s := newTestServer(t)

	rec, env := doJSON(t, s, http.MethodPost, "/api/v1/networks/clusters", networkBody(map[string]interface{}{"method": "sbm"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, env.Message, "not implemented")

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/networks/clusters", networkBody(map[string]interface{}{"method": "spectral"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/networks/clusters", networkBody(map[string]interface{}{"number_cluster": 9}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "more blocks than subjects")

	rec, env = doJSON(t, s, http.MethodPost, "/api/v1/networks/clusters", networkBody(map[string]interface{}{"method": "modularity"}))
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
}

func TestBuildClusters_AnalysisTimeout(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Set("logging.level", "disabled")
	cfg.Set("analysis.timeout", time.Nanosecond)
	s := NewServer(cfg, nil)

	rec, env := doJSON(t, s, http.MethodPost, "/api/v1/networks/clusters", networkBody(nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestQuantityDiversity(t *testing.T) {
	s := newTestServer(t)
	rec, env := doJSON(t, s, http.MethodPost, "/api/v1/quantity-diversity", networkBody(map[string]interface{}{
		"attribute":       "code",
		"by_attribute":    true,
		"group_normalize": true,
	}))
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var stats struct {
		Quantity      map[string]float64 `json:"quantity"`
		Diversity     map[string]float64 `json:"diversity"`
		GroupQuantity map[string]float64 `json:"group_quantity"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.InDelta(t, 3.0/7.0, stats.Quantity["Alice"], 1e-12)
	assert.InDelta(t, 0.918296, stats.Diversity["Alice"], 1e-6)
	assert.InDelta(t, 0.75, stats.GroupQuantity["Bob"], 1e-12)
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "records.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("student,task,group\nAlice,ask,A\nBob,answer,B\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var upload UploadResponse
	require.NoError(t, json.Unmarshal(env.Data, &upload))
	assert.Equal(t, []string{"student", "task", "group"}, upload.Columns)
	assert.Equal(t, []string{"All", "A", "B"}, upload.Groups)
	assert.Len(t, upload.Rows, 2)
}

func TestUpload_Errors(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "records.json")
	require.NoError(t, err)
	_, err = part.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/upload", strings.NewReader("plain"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/networks/hina", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Set("server.cors_origins", []string{"http://allowed.test"})
	s := NewServer(cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://allowed.test")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://allowed.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://other.test")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	doJSON(t, s, http.MethodPost, "/api/v1/networks/hina", networkBody(map[string]interface{}{
		"pruning": map[string]interface{}{"mode": "custom", "alpha": 0.5},
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `hina_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`)
	assert.Contains(t, body, "hina_significance_edges_tested_total 4")
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
}

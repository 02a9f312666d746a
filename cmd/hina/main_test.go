package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const records = `student,task,group,code
Alice,ask,A,cognitive
Alice,ask,A,cognitive
Alice,evaluate,A,metacognitive
Bob,answer,B,cognitive
Bob,answer,B,cognitive
Bob,answer,B,cognitive
Charlie,monitor,B,metacognitive
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, []byte, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.Bytes(), stderr.String()
}

func TestRun_Prune(t *testing.T) {
	input := writeFile(t, "records.csv", records)
	code, out, stderr := runCLI(t, "-subject", "student", "-object", "task", "-alpha", "1", "prune", input)
	require.Equal(t, exitOK, code, stderr)

	var result struct {
		NullModel        string `json:"null_model"`
		SignificantEdges []struct {
			U      string  `json:"u"`
			V      string  `json:"v"`
			Weight float64 `json:"weight"`
		} `json:"significant_edges"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "none", result.NullModel)
	assert.Len(t, result.SignificantEdges, 4)
}

func TestRun_Partition(t *testing.T) {
	input := writeFile(t, "records.csv", records)
	code, out, stderr := runCLI(t, "-subject", "student", "-object", "task", "-fix-b", "2", "-seed", "3", "partition", input)
	require.Equal(t, exitOK, code, stderr)

	var result struct {
		Method     string         `json:"method"`
		Status     string         `json:"status"`
		Blocks     int            `json:"blocks"`
		Assignment map[string]int `json:"assignment"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "mdl", result.Method)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, 2, result.Blocks)
	assert.Len(t, result.Assignment, 3)
}

func TestRun_QuantityForGroup(t *testing.T) {
	input := writeFile(t, "records.csv", records)
	code, out, stderr := runCLI(t, "-subject", "student", "-object", "task", "-group", "B", "quantity", input)
	require.Equal(t, exitOK, code, stderr)

	var result struct {
		Quantity map[string]float64 `json:"quantity"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Len(t, result.Quantity, 2)
	assert.InDelta(t, 0.75, result.Quantity["Bob"], 1e-12)
}

func TestRun_EdgeList(t *testing.T) {
	input := writeFile(t, "graph.txt", "# u v w\n1 a 3\n1 b 1\n2 a 2\n")
	code, out, stderr := runCLI(t, "-method", "modularity", "partition", input)
	require.Equal(t, exitOK, code, stderr)

	var result struct {
		Method string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "modularity", result.Method)
}

func TestRun_Compare(t *testing.T) {
	input := writeFile(t, "records.csv", records)
	code, out, stderr := runCLI(t, "-subject", "student", "-object", "task", "-against", "mdl", "compare", input)
	require.Equal(t, exitOK, code, stderr)

	var result struct {
		A struct {
			Method string `json:"method"`
		} `json:"a"`
		Comparison struct {
			NMI   float64 `json:"nmi"`
			Nodes int     `json:"nodes"`
		} `json:"comparison"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "mdl", result.A.Method)
	assert.Equal(t, 3, result.Comparison.Nodes)
	assert.InDelta(t, 1.0, result.Comparison.NMI, 1e-9)

	code, _, _ = runCLI(t, "-subject", "student", "-object", "task", "-against", "sbm", "compare", input)
	assert.Equal(t, exitError, code)
}

func TestRun_ConfigDefaults(t *testing.T) {
	input := writeFile(t, "records.csv", records)
	cfg := writeFile(t, "hina.yaml", "analysis:\n  alpha: 1\n  fix_deg: student\n")

	code, out, stderr := runCLI(t, "-config", cfg, "-subject", "student", "-object", "task", "prune", input)
	require.Equal(t, exitOK, code, stderr)

	var result struct {
		NullModel string `json:"null_model"`
		Threshold float64
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "subject", result.NullModel)
	assert.Equal(t, 1.0, result.Threshold)
}

func TestRun_Errors(t *testing.T) {
	input := writeFile(t, "records.csv", records)
	badEdges := writeFile(t, "bad.txt", "1 a 1\n2 b heavy\n")
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no arguments", nil, exitUsage},
		{"unknown command", []string{"-subject", "student", "-object", "task", "plot", input}, exitUsage},
		{"missing columns", []string{"prune", input}, exitUsage},
		{"bad flag", []string{"-nope", "prune", input}, exitUsage},
		{"missing file", []string{"-subject", "student", "-object", "task", "prune", filepath.Join(t.TempDir(), "none.csv")}, exitError},
		{"unknown method", []string{"-subject", "student", "-object", "task", "-method", "spectral", "partition", input}, exitError},
		{"alpha out of range", []string{"-subject", "student", "-object", "task", "-alpha", "2", "prune", input}, exitError},
		{"bad edge weight", []string{"prune", badEdges}, exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			assert.Equal(t, tt.code, code)
		})
	}
}

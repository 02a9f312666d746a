// Package parser turns tabular interaction records (CSV or XLSX) and
// plain edge lists into the triples and graphs the analysis consumes.
package parser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

// AllGroups selects every row in FilterGroup.
const AllGroups = "All"

// Table is a header row plus data rows. Rows shorter than the header read
// as empty cells.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ReadCSV reads a table whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errs.WrapInvalid(err, "parser", "ReadCSV", "read records")
	}
	return newTable(records)
}

// ReadXLSX reads the first sheet of a workbook; its first row is the
// header.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errs.WrapInvalid(err, "parser", "ReadXLSX", "open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errs.Invalid("parser", "ReadXLSX", "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errs.WrapInvalid(err, "parser", "ReadXLSX", "read sheet "+sheets[0])
	}
	return newTable(rows)
}

// Read dispatches on the file name extension: .csv, .xlsx or .xlsm.
func Read(name string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(r)
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	default:
		return nil, errs.Unsupported("parser", "Read", "file type", filepath.Ext(name))
	}
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return Read(path, file)
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errs.Invalid("parser", "newTable", "no header row")
	}
	header := make([]string, len(records[0]))
	for i, c := range records[0] {
		header[i] = strings.TrimSpace(c)
	}
	t := &Table{Columns: header, Rows: make([][]string, 0, len(records)-1)}
	for _, row := range records[1:] {
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Index returns the position of a column.
func (t *Table) Index(column string) (int, bool) {
	for i, c := range t.Columns {
		if c == column {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) indices(method string, columns ...string) ([]int, error) {
	idx := make([]int, len(columns))
	for k, c := range columns {
		i, ok := t.Index(c)
		if !ok {
			return nil, errs.Invalid("parser", method, "column %q not found", c)
		}
		idx[k] = i
	}
	return idx, nil
}

// Cell returns row r, column i, trimmed; missing cells are empty.
func (t *Table) Cell(r, i int) string {
	if i >= len(t.Rows[r]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[r][i])
}

// Groups lists the distinct values of column in order of first
// appearance, or just AllGroups when the column is absent.
func (t *Table) Groups(column string) []string {
	i, ok := t.Index(column)
	if !ok {
		return []string{AllGroups}
	}
	seen := make(map[string]bool)
	var groups []string
	for r := range t.Rows {
		v := t.Cell(r, i)
		if !seen[v] {
			seen[v] = true
			groups = append(groups, v)
		}
	}
	return groups
}

// FilterGroup keeps the rows whose column equals group. An empty group or
// AllGroups keeps every row.
func (t *Table) FilterGroup(column, group string) (*Table, error) {
	if group == "" || group == AllGroups {
		return t, nil
	}
	idx, err := t.indices("FilterGroup", column)
	if err != nil {
		return nil, err
	}
	out := &Table{Columns: t.Columns, Rows: make([][]string, 0)}
	for r, row := range t.Rows {
		if t.Cell(r, idx[0]) == group {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// ParseEdgeList reads whitespace separated "u v [weight]" lines. Blank
// lines and lines starting with # are skipped; a missing weight counts
// as 1 and an unparsable one is an invalid-input error.
func ParseEdgeList(r io.Reader) ([]bipartite.Triple, error) {
	var triples []bipartite.Triple
	scanner := bufio.NewScanner(r)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		weight := 1.0
		if len(parts) >= 3 {
			w, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return nil, errs.Invalid("parser", "ParseEdgeList", "line %d: weight %q is not a number", lineNum, parts[2])
			}
			weight = w
		}
		triples = append(triples, bipartite.Triple{U: parts[0], V: parts[1], Weight: weight})
	}

	return triples, scanner.Err()
}

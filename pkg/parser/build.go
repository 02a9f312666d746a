package parser

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

// GraphSpec names the columns a graph is built from.
type GraphSpec struct {
	// Subject and Object list one or more columns each; several columns
	// form a composite identity joined with ",".
	Subject []string
	Object  []string
	// Weight, when set, is added per row instead of 1.
	Weight string
	// Group and Attribute, when set, fill the subject's Group and the
	// object's Attribute metadata.
	Group     string
	Attribute string
	Kind      bipartite.Kind
}

// BuildBipartite counts (subject, object) co-occurrences: each row adds 1,
// or its weight column value, to the pair. Rows with an empty identity are
// skipped. Triples come back sorted by subject then object.
func BuildBipartite(t *Table, subjectCols, objectCols []string, weightCol string) ([]bipartite.Triple, error) {
	g, err := BuildGraph(t, GraphSpec{Subject: subjectCols, Object: objectCols, Weight: weightCol})
	if err != nil {
		return nil, err
	}
	return g.Triples(), nil
}

// BuildTripartite merges two attribute columns into one object identity
// "attr1,attr2" and counts co-occurrences with the subject column.
func BuildTripartite(t *Table, subjectCol, attr1, attr2, weightCol string) ([]bipartite.Triple, error) {
	g, err := BuildGraph(t, GraphSpec{
		Subject: []string{subjectCol},
		Object:  []string{attr1, attr2},
		Weight:  weightCol,
		Kind:    bipartite.KindTripartite,
	})
	if err != nil {
		return nil, err
	}
	return g.Triples(), nil
}

// BuildGraph builds the typed graph described by spec.
func BuildGraph(t *Table, spec GraphSpec) (*bipartite.Graph, error) {
	if len(spec.Subject) == 0 || len(spec.Object) == 0 {
		return nil, errs.Invalid("parser", "BuildGraph", "subject and object columns are required")
	}
	subjectIdx, err := t.indices("BuildGraph", spec.Subject...)
	if err != nil {
		return nil, err
	}
	objectIdx, err := t.indices("BuildGraph", spec.Object...)
	if err != nil {
		return nil, err
	}
	weightIdx, groupIdx, attrIdx := -1, -1, -1
	for _, opt := range []struct {
		column string
		idx    *int
	}{{spec.Weight, &weightIdx}, {spec.Group, &groupIdx}, {spec.Attribute, &attrIdx}} {
		if opt.column == "" {
			continue
		}
		idx, err := t.indices("BuildGraph", opt.column)
		if err != nil {
			return nil, err
		}
		*opt.idx = idx[0]
	}

	nodes := make(map[string]bipartite.Node)
	var triples []bipartite.Triple
	for r := range t.Rows {
		subject, ok := t.identity(r, subjectIdx)
		if !ok {
			continue
		}
		object, ok := t.identity(r, objectIdx)
		if !ok {
			continue
		}

		weight := 1.0
		if weightIdx >= 0 {
			raw := t.Cell(r, weightIdx)
			weight, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, errs.Invalid("parser", "BuildGraph", "row %d: weight %q is not a number", r+1, raw)
			}
		}

		if err := addNode(nodes, bipartite.Node{ID: subject, Side: bipartite.SideSubject, Group: t.optional(r, groupIdx)}); err != nil {
			return nil, err
		}
		if err := addNode(nodes, bipartite.Node{ID: object, Side: bipartite.SideObject, Attribute: t.optional(r, attrIdx)}); err != nil {
			return nil, err
		}
		triples = append(triples, bipartite.Triple{U: subject, V: object, Weight: weight})
	}

	list := make([]bipartite.Node, 0, len(nodes))
	for _, n := range nodes {
		list = append(list, n)
	}
	slices.SortFunc(list, func(x, y bipartite.Node) int { return cmp.Compare(x.ID, y.ID) })

	kind := spec.Kind
	if len(spec.Object) > 1 {
		kind = bipartite.KindTripartite
	}
	return bipartite.FromNodes(list, triples, bipartite.WithKind(kind))
}

func (t *Table) identity(r int, idx []int) (string, bool) {
	parts := make([]string, len(idx))
	for k, i := range idx {
		parts[k] = t.Cell(r, i)
		if parts[k] == "" {
			return "", false
		}
	}
	return bipartite.CompositeID(parts...), true
}

func (t *Table) optional(r, i int) string {
	if i < 0 {
		return ""
	}
	return t.Cell(r, i)
}

// addNode keeps the first non-empty metadata seen for a node and rejects a
// value used on both sides.
func addNode(nodes map[string]bipartite.Node, n bipartite.Node) error {
	existing, ok := nodes[n.ID]
	if !ok {
		nodes[n.ID] = n
		return nil
	}
	if existing.Side != n.Side {
		return errs.Invalid("parser", "BuildGraph", "value %q appears as both subject and object", n.ID)
	}
	if existing.Group == "" {
		existing.Group = n.Group
	}
	if existing.Attribute == "" {
		existing.Attribute = n.Attribute
	}
	nodes[n.ID] = existing
	return nil
}

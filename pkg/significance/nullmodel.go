package significance

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
)

// NullModel selects which marginal stays fixed when interactions are
// reallocated at random.
type NullModel int

const (
	// NullUnknown means fix_deg named nothing recognizable.
	NullUnknown NullModel = iota
	// NullUniform spreads the total weight uniformly over all subject-object pairs.
	NullUniform
	// NullFixSubject keeps every subject's total weight and spreads it over the objects.
	NullFixSubject
	// NullFixObject keeps every object's total weight and spreads it over the subjects.
	NullFixObject
)

// String returns the null model label
func (m NullModel) String() string {
	switch m {
	case NullUniform:
		return "none"
	case NullFixSubject:
		return "subject"
	case NullFixObject:
		return "object"
	default:
		return "unknown"
	}
}

// MarshalText encodes the null model as its label.
func (m NullModel) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a label written by MarshalText.
func (m *NullModel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*m = NullUniform
	case "subject":
		*m = NullFixSubject
	case "object":
		*m = NullFixObject
	default:
		*m = NullUnknown
	}
	return nil
}

// ResolveNullModel maps a fix_deg value to a null model. Accepted values
// are "none" (or empty), a side label understood by bipartite.ParseSide,
// or a column name listed in columns. The boolean is false when nothing
// matched.
func ResolveNullModel(fixDeg string, columns map[string]bipartite.Side) (NullModel, bool) {
	switch strings.ToLower(strings.TrimSpace(fixDeg)) {
	case "", "none", "null":
		return NullUniform, true
	}
	if side, ok := columns[fixDeg]; ok {
		return fromSide(side), true
	}
	if side, err := bipartite.ParseSide(fixDeg); err == nil {
		return fromSide(side), true
	}
	return NullUnknown, false
}

func fromSide(side bipartite.Side) NullModel {
	if side == bipartite.SideSubject {
		return NullFixSubject
	}
	return NullFixObject
}

// allocation describes the binomial experiment that generates one edge's
// weight under a null model: trials units of weight, each landing on the
// edge with probability p.
type allocation struct {
	trials float64
	p      float64
}

func (a allocation) expected() float64 { return a.trials * a.p }

// degenerate reports whether the null model leaves no freedom: every unit
// must land on this edge.
func (a allocation) degenerate() bool { return a.p >= 1 }

// support is the number of subjects and objects that carry weight. Declared
// nodes without edges cannot receive weight under any null model.
type support struct {
	subjects, objects float64
}

func supportOf(g *bipartite.Graph) support {
	var s support
	for i := 0; i < g.NumSubjects(); i++ {
		if g.SubjectStrength(i) > 0 {
			s.subjects++
		}
	}
	for j := 0; j < g.NumObjects(); j++ {
		if g.ObjectStrength(j) > 0 {
			s.objects++
		}
	}
	s.subjects = max(s.subjects, 1)
	s.objects = max(s.objects, 1)
	return s
}

func (m NullModel) allocation(g *bipartite.Graph, sup support, e bipartite.Edge) allocation {
	n1, n2 := sup.subjects, sup.objects
	switch m {
	case NullUniform:
		return allocation{trials: g.TotalWeight(), p: 1 / (n1 * n2)}
	case NullFixSubject:
		return allocation{trials: g.SubjectStrength(e.Subject), p: 1 / n2}
	case NullFixObject:
		return allocation{trials: g.ObjectStrength(e.Object), p: 1 / n1}
	default:
		return allocation{}
	}
}

// upperTail returns P(X >= w) for X ~ Binomial(trials, p). Weights are
// rounded up to the next whole unit. When the tail is reachable it is the
// regularized incomplete beta I_p(k, n-k+1), which keeps precision for
// very small p-values; fractional totals fall back to the survival
// function of the continuous-N binomial.
func upperTail(a allocation, w float64) float64 {
	if w <= 0 || a.trials <= 0 || a.p >= 1 {
		return 1
	}
	if a.p <= 0 {
		return 0
	}
	k := math.Ceil(w)
	if k <= a.trials {
		return mathext.RegIncBeta(k, a.trials-k+1, a.p)
	}
	return distuv.Binomial{N: a.trials, P: a.p}.Survival(k - 1)
}

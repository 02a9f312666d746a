package bipartite

import (
	"fmt"
	"strings"

	"github.com/gilchrisn/hina-service/pkg/errs"
)

// Side identifies which half of a bipartite graph a node belongs to.
type Side uint8

const (
	// SideSubject holds the actors (students, users) that get partitioned.
	SideSubject Side = iota
	// SideObject holds the things actors interact with. In a tripartite
	// graph the object identity is a composite of two attributes.
	SideObject
)

// String returns the canonical label of the side
func (s Side) String() string {
	switch s {
	case SideSubject:
		return "subject"
	case SideObject:
		return "object"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideSubject {
		return SideObject
	}
	return SideSubject
}

// MarshalText encodes the side as its label.
func (s Side) MarshalText() ([]byte, error) {
	if s != SideSubject && s != SideObject {
		return nil, errs.Invalid("bipartite", "MarshalText", "unknown side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes any label accepted by ParseSide.
func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide maps a side label to a Side. Besides the canonical labels it
// accepts the "set 1"/"set 2" spelling used by the web client.
func ParseSide(label string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "subject", "set 1", "set1", "set_1", "0":
		return SideSubject, nil
	case "object", "set 2", "set2", "set_2", "1", "tripartite":
		return SideObject, nil
	default:
		return 0, errs.Invalid("bipartite", "ParseSide", "unrecognized side label %q", label)
	}
}

// Kind distinguishes plain bipartite graphs from tripartite ones whose
// object side was merged from two attribute columns.
type Kind uint8

const (
	KindBipartite Kind = iota
	KindTripartite
)

// String returns the kind label
func (k Kind) String() string {
	if k == KindTripartite {
		return "tripartite"
	}
	return "bipartite"
}

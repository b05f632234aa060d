// Package desktop models how callers name a virtual desktop.
//
// A desktop can be named by its ordinal position in the shell's live list
// (volatile: creation, removal and reordering shift it), by its stable ID, or
// by both at once when an enumeration produced them together. Ref is a pure
// value: it owns no native resources and is resolved against the live shell
// on demand.
package desktop

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type form uint8

const (
	formNone form = iota
	formIndex
	formID
	formBoth
)

// Ref names a desktop by index, by ID, or both.
type Ref struct {
	form  form
	index uint32
	id    ID
}

// Index refers to the desktop at ordinal position n.
func Index(n uint32) Ref { return Ref{form: formIndex, index: n} }

// WithID refers to the desktop with the given stable identifier.
func WithID(id ID) Ref { return Ref{form: formID, id: id} }

// IndexAndID carries both coordinates, as produced by enumeration.
func IndexAndID(n uint32, id ID) Ref { return Ref{form: formBoth, index: n, id: id} }

// IsZero reports whether r names nothing.
func (r Ref) IsZero() bool { return r.form == formNone }

// Index returns the ordinal if r carries one.
func (r Ref) Index() (uint32, bool) {
	if r.form == formIndex || r.form == formBoth {
		return r.index, true
	}
	return 0, false
}

// ID returns the identifier if r carries one.
func (r Ref) ID() (ID, bool) {
	if r.form == formID || r.form == formBoth {
		return r.id, true
	}
	return NilID, false
}

// IsResolved reports whether r carries both coordinates.
func (r Ref) IsResolved() bool { return r.form == formBoth }

// Equal compares r and o for being the same desktop. When only one carries an
// index and the other only an ID, the answer needs the live shell and
// decidable is false.
func (r Ref) Equal(o Ref) (equal, decidable bool) {
	if r.IsZero() || o.IsZero() {
		return r.IsZero() && o.IsZero(), true
	}
	rid, rHasID := r.ID()
	oid, oHasID := o.ID()
	if rHasID && oHasID {
		return rid == oid, true
	}
	ri, rHasIndex := r.Index()
	oi, oHasIndex := o.Index()
	if rHasIndex && oHasIndex {
		return ri == oi, true
	}
	return false, false
}

// SameAs is Equal for callers that treat an undecidable pair as different.
func (r Ref) SameAs(o Ref) bool {
	eq, ok := r.Equal(o)
	return ok && eq
}

func (r Ref) String() string {
	switch r.form {
	case formIndex:
		return fmt.Sprintf("#%d", r.index)
	case formID:
		return r.id.String()
	case formBoth:
		return fmt.Sprintf("#%d %s", r.index, r.id)
	default:
		return "<none>"
	}
}

// ParseRef reads a desktop from command-line text: a decimal number is an
// index, anything else must be an ID.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty desktop reference")
	}
	if n, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 32); err == nil {
		return Index(uint32(n)), nil
	}
	id, err := ParseID(s)
	if err != nil {
		return Ref{}, fmt.Errorf("desktop reference %q is neither an index nor an id", s)
	}
	return WithID(id), nil
}

type refJSON struct {
	Index *uint32 `json:"index,omitempty"`
	ID    *ID     `json:"id,omitempty"`
}

func (r Ref) MarshalJSON() ([]byte, error) {
	var out refJSON
	if n, ok := r.Index(); ok {
		out.Index = &n
	}
	if id, ok := r.ID(); ok {
		out.ID = &id
	}
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(out)
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Ref{}
		return nil
	}
	var in refJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("decode desktop reference: %w", err)
	}
	switch {
	case in.Index != nil && in.ID != nil:
		*r = IndexAndID(*in.Index, *in.ID)
	case in.Index != nil:
		*r = Index(*in.Index)
	case in.ID != nil:
		*r = WithID(*in.ID)
	default:
		*r = Ref{}
	}
	return nil
}

// Package query models the structured queries a threaddb service evaluates
// against a collection: a conjunction of field comparisons, optional
// disjunctions of nested queries, and optional sort and pagination. Queries
// serialize to the JSON payload carried inside Find requests.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operation compares a document field with a typed scalar.
type Operation int

const (
	Eq Operation = iota
	Ne
	Gt
	Lt
	Ge
	Le
)

// Value is a typed scalar, tagged on the wire as exactly one of string, bool
// or float.
type Value struct {
	String *string  `json:"string,omitempty"`
	Bool   *bool    `json:"bool,omitempty"`
	Float  *float64 `json:"float,omitempty"`
}

// NewValue wraps a Go scalar. Integers are carried as floats, matching the
// numeric model of the JSON documents they are compared against.
func NewValue(v any) (Value, error) {
	switch x := v.(type) {
	case string:
		return Value{String: &x}, nil
	case bool:
		return Value{Bool: &x}, nil
	case float64:
		return Value{Float: &x}, nil
	case float32:
		f := float64(x)
		return Value{Float: &f}, nil
	case int:
		f := float64(x)
		return Value{Float: &f}, nil
	case int64:
		f := float64(x)
		return Value{Float: &f}, nil
	default:
		return Value{}, fmt.Errorf("query: unsupported value type %T", v)
	}
}

// Criterion is one field comparison inside a query.
type Criterion struct {
	FieldPath string    `json:"fieldPath"`
	Operation Operation `json:"operation"`
	Value     Value     `json:"value"`

	query *Query
}

// Sort orders results by one field path.
type Sort struct {
	FieldPath string `json:"fieldPath"`
	Desc      bool   `json:"desc"`
}

// Query is a filter over a collection. The zero value matches every
// document.
type Query struct {
	Ands  []*Criterion `json:"ands,omitempty"`
	Ors   []*Query     `json:"ors,omitempty"`
	Sort  *Sort        `json:"sort,omitempty"`
	Limit int          `json:"limit,omitempty"`
	Skip  int          `json:"skip,omitempty"`
	Index string       `json:"index,omitempty"`
}

// Where starts a query with a comparison on fieldPath.
func Where(fieldPath string) *Criterion {
	return &Criterion{FieldPath: fieldPath}
}

// And adds a further comparison that must also hold.
func (q *Query) And(fieldPath string) *Criterion {
	return &Criterion{FieldPath: fieldPath, query: q}
}

// Or adds an alternative query whose matches are unioned with this one's.
func (q *Query) Or(other *Query) *Query {
	q.Ors = append(q.Ors, other)
	return q
}

// OrderBy sorts results ascending by fieldPath.
func (q *Query) OrderBy(fieldPath string) *Query {
	q.Sort = &Sort{FieldPath: fieldPath}
	return q
}

// OrderByDesc sorts results descending by fieldPath.
func (q *Query) OrderByDesc(fieldPath string) *Query {
	q.Sort = &Sort{FieldPath: fieldPath, Desc: true}
	return q
}

// LimitTo caps the number of results.
func (q *Query) LimitTo(limit int) *Query {
	q.Limit = limit
	return q
}

// SkipNum drops the first num results.
func (q *Query) SkipNum(num int) *Query {
	q.Skip = num
	return q
}

// UseIndex hints the index to serve the query from.
func (q *Query) UseIndex(path string) *Query {
	q.Index = path
	return q
}

// Eq completes the comparison with equality.
func (c *Criterion) Eq(value any) (*Query, error) { return c.close(Eq, value) }

// Ne completes the comparison with inequality.
func (c *Criterion) Ne(value any) (*Query, error) { return c.close(Ne, value) }

// Gt completes the comparison with greater-than.
func (c *Criterion) Gt(value any) (*Query, error) { return c.close(Gt, value) }

// Lt completes the comparison with less-than.
func (c *Criterion) Lt(value any) (*Query, error) { return c.close(Lt, value) }

// Ge completes the comparison with greater-or-equal.
func (c *Criterion) Ge(value any) (*Query, error) { return c.close(Ge, value) }

// Le completes the comparison with less-or-equal.
func (c *Criterion) Le(value any) (*Query, error) { return c.close(Le, value) }

func (c *Criterion) close(op Operation, value any) (*Query, error) {
	v, err := NewValue(value)
	if err != nil {
		return nil, err
	}
	c.Operation = op
	c.Value = v
	q := c.query
	if q == nil {
		q = &Query{}
	}
	q.Ands = append(q.Ands, c)
	return q, nil
}

// Bytes returns the JSON wire form carried inside Find requests.
func (q *Query) Bytes() ([]byte, error) {
	return json.Marshal(q)
}

// FromBytes parses a serialized query.
func FromBytes(b []byte) (*Query, error) {
	q := &Query{}
	if err := json.Unmarshal(b, q); err != nil {
		return nil, fmt.Errorf("query: decoding: %w", err)
	}
	return q, nil
}

// Match reports whether a JSON document satisfies the query, ignoring sort
// and pagination.
func (q *Query) Match(instance []byte) (bool, error) {
	var doc map[string]any
	if err := json.Unmarshal(instance, &doc); err != nil {
		return false, fmt.Errorf("query: decoding instance: %w", err)
	}
	return q.matchDoc(doc), nil
}

func (q *Query) matchDoc(doc map[string]any) bool {
	ok := true
	for _, c := range q.Ands {
		if !c.matchDoc(doc) {
			ok = false
			break
		}
	}
	// A query with only disjunctions matches through them alone.
	if ok && len(q.Ands) == 0 && len(q.Ors) > 0 {
		ok = false
	}
	if ok {
		return true
	}
	for _, or := range q.Ors {
		if or.matchDoc(doc) {
			return true
		}
	}
	return false
}

func (c *Criterion) matchDoc(doc map[string]any) bool {
	field, ok := lookup(doc, c.FieldPath)
	if !ok {
		return false
	}
	cmp, ok := c.Value.compare(field)
	if !ok {
		return false
	}
	switch c.Operation {
	case Eq:
		return cmp == 0
	case Ne:
		return cmp != 0
	case Gt:
		return cmp > 0
	case Lt:
		return cmp < 0
	case Ge:
		return cmp >= 0
	case Le:
		return cmp <= 0
	default:
		return false
	}
}

// compare orders the document field against the criterion value. The second
// result is false when the types do not line up.
func (v Value) compare(field any) (int, bool) {
	switch {
	case v.String != nil:
		s, ok := field.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, *v.String), true
	case v.Bool != nil:
		b, ok := field.(bool)
		if !ok {
			return 0, false
		}
		// false orders before true.
		switch {
		case b == *v.Bool:
			return 0, true
		case b:
			return 1, true
		default:
			return -1, true
		}
	case v.Float != nil:
		f, ok := field.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case f < *v.Float:
			return -1, true
		case f > *v.Float:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func lookup(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

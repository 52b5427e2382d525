package query

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustQuery(t *testing.T) func(q *Query, err error) *Query {
	t.Helper()
	return func(q *Query, err error) *Query {
		t.Helper()
		if err != nil {
			t.Fatalf("building query: %v", err)
		}
		return q
	}
}

func doc(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

type person struct {
	ID        string  `json:"_id"`
	FirstName string  `json:"firstName"`
	Age       float64 `json:"age"`
	Active    bool    `json:"active"`
}

func TestBuilderWireForm(t *testing.T) {
	q := mustQuery(t)(Where("age").Gt(21))
	q = q.OrderByDesc("firstName").LimitTo(10).SkipNum(2)

	b, err := q.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	want := map[string]any{
		"ands": []any{map[string]any{
			"fieldPath": "age",
			"operation": float64(Gt),
			"value":     map[string]any{"float": float64(21)},
		}},
		"sort":  map[string]any{"fieldPath": "firstName", "desc": true},
		"limit": float64(10),
		"skip":  float64(2),
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("wire form mismatch (-want +got):\n%s", diff)
	}

	back, err := FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if back.Sort == nil || back.Sort.FieldPath != "firstName" || !back.Sort.Desc {
		t.Fatalf("round-trip lost sort: %+v", back.Sort)
	}
}

func TestMatchOperators(t *testing.T) {
	adam := doc(t, person{ID: "1", FirstName: "Adam", Age: 21, Active: true})

	tests := []struct {
		name string
		q    *Query
		want bool
	}{
		{"eq string", mustQuery(t)(Where("firstName").Eq("Adam")), true},
		{"eq string miss", mustQuery(t)(Where("firstName").Eq("Eve")), false},
		{"ne string", mustQuery(t)(Where("firstName").Ne("Eve")), true},
		{"gt", mustQuery(t)(Where("age").Gt(20)), true},
		{"gt miss", mustQuery(t)(Where("age").Gt(21)), false},
		{"ge", mustQuery(t)(Where("age").Ge(21)), true},
		{"lt", mustQuery(t)(Where("age").Lt(30)), true},
		{"le miss", mustQuery(t)(Where("age").Le(20)), false},
		{"bool", mustQuery(t)(Where("active").Eq(true)), true},
		{"bool ne", mustQuery(t)(Where("active").Ne(false)), true},
		{"bool gt", mustQuery(t)(Where("active").Gt(false)), true},
		{"bool gt miss", mustQuery(t)(Where("active").Gt(true)), false},
		{"bool lt miss", mustQuery(t)(Where("active").Lt(false)), false},
		{"missing field", mustQuery(t)(Where("lastName").Eq("Doe")), false},
		{"type mismatch", mustQuery(t)(Where("firstName").Gt(3)), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.q.Match(adam)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Match: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatchBoolOrdering(t *testing.T) {
	inactive := doc(t, person{ID: "2", FirstName: "Eve", Active: false})
	if ok, _ := mustQuery(t)(Where("active").Gt(true)).Match(inactive); ok {
		t.Fatalf("false field must not order above true")
	}
	if ok, _ := mustQuery(t)(Where("active").Lt(true)).Match(inactive); !ok {
		t.Fatalf("false orders below true")
	}
}

func TestMatchConjunctionAndDisjunction(t *testing.T) {
	adam := doc(t, person{ID: "1", FirstName: "Adam", Age: 21})

	and := mustQuery(t)(Where("firstName").Eq("Adam"))
	and = mustQuery(t)(and.And("age").Ge(21))
	if ok, _ := and.Match(adam); !ok {
		t.Fatalf("conjunction should match")
	}
	and2 := mustQuery(t)(Where("firstName").Eq("Adam"))
	and2 = mustQuery(t)(and2.And("age").Gt(30))
	if ok, _ := and2.Match(adam); ok {
		t.Fatalf("failed conjunct must reject")
	}

	or := mustQuery(t)(Where("firstName").Eq("Eve"))
	or = or.Or(mustQuery(t)(Where("age").Eq(21)))
	if ok, _ := or.Match(adam); !ok {
		t.Fatalf("disjunction should match through the alternative")
	}
	orMiss := mustQuery(t)(Where("firstName").Eq("Eve"))
	orMiss = orMiss.Or(mustQuery(t)(Where("age").Eq(99)))
	if ok, _ := orMiss.Match(adam); ok {
		t.Fatalf("disjunction with no matching branch must reject")
	}
}

func TestMatchNestedFieldPath(t *testing.T) {
	d := doc(t, map[string]any{"_id": "1", "address": map[string]any{"city": "Lisbon"}})
	q := mustQuery(t)(Where("address.city").Eq("Lisbon"))
	if ok, _ := q.Match(d); !ok {
		t.Fatalf("nested path should match")
	}
}

func TestApplySortSkipLimit(t *testing.T) {
	people := [][]byte{
		doc(t, person{ID: "1", FirstName: "Carol", Age: 40}),
		doc(t, person{ID: "2", FirstName: "Adam", Age: 21}),
		doc(t, person{ID: "3", FirstName: "Bob", Age: 30}),
		doc(t, person{ID: "4", FirstName: "Dan", Age: 17}),
	}

	q := mustQuery(t)(Where("age").Ge(21))
	q = q.OrderBy("age")
	got, err := q.Apply(people)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var names []string
	for _, b := range got {
		var p person
		if err := json.Unmarshal(b, &p); err != nil {
			t.Fatalf("json.Unmarshal: %v", err)
		}
		names = append(names, p.FirstName)
	}
	if diff := cmp.Diff([]string{"Adam", "Bob", "Carol"}, names); diff != "" {
		t.Fatalf("sorted result mismatch (-want +got):\n%s", diff)
	}

	q2 := mustQuery(t)(Where("age").Ge(0))
	q2 = q2.OrderByDesc("age").SkipNum(1).LimitTo(2)
	got, err = q2.Apply(people)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("skip/limit: got %d results, want 2", len(got))
	}
	var first person
	if err := json.Unmarshal(got[0], &first); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if first.FirstName != "Bob" {
		t.Fatalf("after desc sort and skip 1, first is %q, want Bob", first.FirstName)
	}
}

func TestNewValueRejectsUnsupportedTypes(t *testing.T) {
	if _, err := NewValue(struct{}{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

package query

import (
	"encoding/json"
	"sort"
	"strings"
)

// Apply runs the full query against a set of JSON documents: filter, then
// sort, then skip/limit. It is the evaluation a server performs when no
// index serves the query.
func (q *Query) Apply(instances [][]byte) ([][]byte, error) {
	matched := make([][]byte, 0, len(instances))
	for _, inst := range instances {
		ok, err := q.Match(inst)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, inst)
		}
	}

	if q.Sort != nil && q.Sort.FieldPath != "" {
		if err := sortInstances(matched, q.Sort); err != nil {
			return nil, err
		}
	}

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func sortInstances(instances [][]byte, s *Sort) error {
	type keyed struct {
		raw []byte
		key any
	}
	ks := make([]keyed, len(instances))
	for i, inst := range instances {
		var doc map[string]any
		if err := json.Unmarshal(inst, &doc); err != nil {
			return err
		}
		k, _ := lookup(doc, s.FieldPath)
		ks[i] = keyed{raw: inst, key: k}
	}

	less := func(a, b any) bool {
		switch x := a.(type) {
		case float64:
			y, ok := b.(float64)
			return ok && x < y
		case string:
			y, ok := b.(string)
			return ok && strings.Compare(x, y) < 0
		case bool:
			y, ok := b.(bool)
			return ok && !x && y
		default:
			// Missing or unordered keys sort first.
			return b != nil
		}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		if s.Desc {
			return less(ks[j].key, ks[i].key)
		}
		return less(ks[i].key, ks[j].key)
	})
	for i := range ks {
		instances[i] = ks[i].raw
	}
	return nil
}

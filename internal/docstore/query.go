package docstore

import (
	"sort"
	"strings"
	"time"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter matches documents whose field equals Value
type Filter struct {
	Field string
	Value any
}

type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents from one collection. Limit <= 0 means no limit.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int
}

// Where returns a copy of q with an equality filter added
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Sort returns a copy of q with an ordering added
func (q Query) Sort(field string, dir Direction) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: field, Direction: dir})
	return q
}

// Take returns a copy of q limited to n results
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// ApplyQuery filters, orders and limits docs in place of a native query
// engine. Ties on every ordering field fall back to document id.
func ApplyQuery(q Query, docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if matches(q.Filters, d) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compareValues(out[i].Fields[o.Field], out[j].Fields[o.Field])
			if c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(filters []Filter, d Document) bool {
	for _, f := range filters {
		want, err := Encode(map[string]any{"v": f.Value})
		if err != nil {
			return false
		}
		if compareValues(d.Fields[f.Field], want["v"]) != 0 {
			return false
		}
	}
	return true
}

// compareValues orders JSON-normalized values. nil sorts first, numbers
// compare numerically, and strings that are RFC 3339 timestamps compare as time.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case string:
		if bv, ok := b.(string); ok {
			at, aErr := time.Parse(time.RFC3339Nano, av)
			bt, bErr := time.Parse(time.RFC3339Nano, bv)
			if aErr == nil && bErr == nil {
				return at.Compare(bt)
			}
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(typeRank(a), typeRank(b))
}

func typeRank(v any) string {
	switch v.(type) {
	case bool:
		return "1bool"
	case float64:
		return "2number"
	case string:
		return "3string"
	default:
		return "4other"
	}
}

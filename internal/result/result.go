// Package result defines the result-set shape shared by the pipeline,
// the transformer sandbox, and consumers: an order-preserving mapping
// from result-set key to rows.
//
// A key mapped to zero rows means "no data for this key"; an absent key
// means the key was never part of the result. Both the pipeline and the
// sandbox operate on this one concrete shape instead of branching on
// plain-map vs ordered-map at runtime.
package result

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/dolmen-go/jsonmap"
)

// IndexKey is the bookkeeping key that upstream row flattening writes
// into every row. It is stripped from the final result by Clean.
const IndexKey = "__rowindex"

// Row is a single named-column record.
type Row = map[string]any

// Set is an order-preserving mapping from key to rows. The zero value
// is not usable; use NewSet.
type Set struct {
	order []string
	rows  map[string][]Row
}

// NewSet returns an empty result set.
func NewSet() *Set {
	return &Set{rows: map[string][]Row{}}
}

// Put stores rows under key, replacing any previous rows. A key keeps
// its first-seen position.
func (s *Set) Put(key string, rows []Row) *Set {
	if _, ok := s.rows[key]; !ok {
		s.order = append(s.order, key)
	}
	if rows == nil {
		rows = []Row{}
	}
	s.rows[key] = rows
	return s
}

// Get returns the rows stored under key.
func (s *Set) Get(key string) ([]Row, bool) {
	rows, ok := s.rows[key]
	return rows, ok
}

// Keys returns the keys in insertion order.
func (s *Set) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of keys.
func (s *Set) Len() int { return len(s.order) }

// Clone returns a deep copy of the set. Rows and any nested maps or
// slices are copied, so mutation of the clone never reaches the original.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	out := NewSet()
	for _, key := range s.order {
		rows := s.rows[key]
		copied := make([]Row, len(rows))
		for i, row := range rows {
			copied[i] = copyValue(row).(Row)
		}
		out.Put(key, copied)
	}
	return out
}

// Clean removes IndexKey from every row, recursing into nested maps and
// slices. It mutates the set in place and returns it; running it on an
// already-cleaned set is a no-op.
func (s *Set) Clean() *Set {
	if s == nil {
		return nil
	}
	for _, rows := range s.rows {
		for _, row := range rows {
			cleanMap(row)
		}
	}
	return s
}

func cleanMap(m map[string]any) {
	delete(m, IndexKey)
	for _, v := range m {
		cleanValue(v)
	}
}

func cleanValue(v any) {
	switch vv := v.(type) {
	case map[string]any:
		cleanMap(vv)
	case []any:
		for _, item := range vv {
			cleanValue(item)
		}
	case []Row:
		for _, item := range vv {
			cleanMap(item)
		}
	}
}

func copyValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, item := range vv {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = copyValue(item)
		}
		return out
	case []Row:
		out := make([]Row, len(vv))
		for i, item := range vv {
			out[i] = copyValue(item).(Row)
		}
		return out
	default:
		return vv
	}
}

// Equal reports whether two sets hold the same keys in the same order
// with deeply equal rows.
func (s *Set) Equal(o *Set) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.order) != len(o.order) {
		return false
	}
	for i, k := range s.order {
		if o.order[i] != k {
			return false
		}
		if !reflect.DeepEqual(s.rows[k], o.rows[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON object whose keys appear in
// insertion order.
func (s *Set) MarshalJSON() ([]byte, error) {
	om := jsonmap.Ordered{
		Order: s.order,
		Data:  make(map[string]interface{}, len(s.rows)),
	}
	for k, rows := range s.rows {
		om.Data[k] = rows
	}
	return json.Marshal(om)
}

// FromMap converts a plain key→value map into a Set with keys in sorted
// order (plain Go maps carry no order of their own). Values are
// normalized to row slices via Rows.
func FromMap(m map[string]any) *Set {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := NewSet()
	for _, k := range keys {
		out.Put(k, Rows(m[k]))
	}
	return out
}

// Rows normalizes an arbitrary decoded value into a row slice:
// a list becomes one row per element, a single object becomes a
// one-row slice, nil becomes an empty slice, and a scalar becomes a
// one-row slice keyed "value".
func Rows(v any) []Row {
	switch vv := v.(type) {
	case nil:
		return []Row{}
	case []Row:
		return vv
	case []any:
		out := make([]Row, 0, len(vv))
		for _, item := range vv {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			} else {
				out = append(out, Row{"value": item})
			}
		}
		return out
	case map[string]any:
		return []Row{vv}
	default:
		return []Row{{"value": vv}}
	}
}

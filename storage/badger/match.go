package badger

import (
	"cmp"
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// Type ranks follow Firestore's cross-type ordering.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

// lookup resolves a dotted field path inside nested maps.
func lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for part := range strings.SplitSeq(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func matchesAll(data map[string]any, filters []storage.Filter) bool {
	for _, f := range filters {
		if !matches(data, f) {
			return false
		}
	}
	return true
}

func matches(data map[string]any, f storage.Filter) bool {
	value, ok := lookup(data, f.Field)
	if !ok {
		return false
	}

	switch f.Op {
	case storage.OpEqual:
		return equal(value, f.Value)
	case storage.OpIn:
		values, _ := f.Value.([]any)
		for _, v := range values {
			if equal(value, v) {
				return true
			}
		}
		return false
	}

	// Range filters only match values of the same kind, and never null.
	if value == nil || f.Value == nil || rankOf(value) != rankOf(f.Value) {
		return false
	}
	c := compareValues(value, f.Value)
	switch f.Op {
	case storage.OpGreater:
		return c > 0
	case storage.OpGreaterOrEqual:
		return c >= 0
	case storage.OpLess:
		return c < 0
	case storage.OpLessOrEqual:
		return c <= 0
	}
	return false
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := rankOf(a), rankOf(b)
	if ra == rankOther || rb == rankOther {
		return reflect.DeepEqual(plain(a), plain(b))
	}
	if ra != rb {
		return false
	}
	return compareValues(a, b) == 0
}

// compareValues orders two values: by type rank first, then by value.
// Strings always compare as strings, whatever they contain.
func compareValues(a, b any) int {
	ra, rb := rankOf(a), rankOf(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNull:
		return 0
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return compareNumbers(a, b)
	case rankTime:
		x, _ := storage.NormalizeTime(a)
		y, _ := storage.NormalizeTime(b)
		return x.Compare(y)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

func rankOf(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case time.Time, *time.Time:
		return rankTime
	case string:
		return rankString
	}
	if _, ok := asFloat(v); ok {
		return rankNumber
	}
	return rankOther
}

// compareNumbers compares integers exactly and falls back to float64
// when either side is fractional.
func compareNumbers(a, b any) int {
	x, okX := asInt(a)
	y, okY := asInt(b)
	if okX && okY {
		return cmp.Compare(x, y)
	}
	fx, _ := asFloat(a)
	fy, _ := asFloat(b)
	return cmp.Compare(fx, fy)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// plain round-trips a composite value through JSON so that Go-typed
// filter values compare equal to decoded document values.
func plain(v any) any {
	bs, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(bs, &out); err != nil {
		return v
	}
	return out
}

// sortDocuments orders docs by each Order in turn, then by id.
func sortDocuments(docs []*storage.Document, orders []storage.Order) {
	slices.SortStableFunc(docs, func(x, y *storage.Document) int {
		for _, o := range orders {
			vx, _ := lookup(x.Data, o.Field)
			vy, _ := lookup(y.Data, o.Field)
			c := compareValues(vx, vy)
			if o.Direction == core.SortDesc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(x.ID, y.ID)
	})
}

// mergePaths returns a copy of dst with each dotted path in fields set to
// its value. Intermediate maps are copied or created along the way.
func mergePaths(dst, fields map[string]any) map[string]any {
	out := copyMap(dst)
	for path, value := range fields {
		setPath(out, strings.Split(path, "."), value)
	}
	return out
}

func setPath(m map[string]any, parts []string, value any) {
	if len(parts) == 1 {
		m[parts[0]] = value
		return
	}
	child, ok := m[parts[0]].(map[string]any)
	if ok {
		child = copyMap(child)
	} else {
		child = map[string]any{}
	}
	m[parts[0]] = child
	setPath(child, parts[1:], value)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

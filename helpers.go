package relate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// KeyType declares how an entity's primary key values are normalized when
// they are used for dictionary matching and identity comparison.
type KeyType int

const (
	// KeyInt normalizes key values through int64.
	KeyInt KeyType = iota

	// KeyString normalizes key values through string.
	KeyString
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateColumnName rejects identifiers that could be used for SQL
// injection through dynamically supplied column or table names.
// A single qualification ("table.column") is allowed.
func ValidateColumnName(name string) error {
	if name == "" {
		return &InvalidArgumentError{Message: "empty column name"}
	}

	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return &InvalidArgumentError{Message: fmt.Sprintf("invalid column name %q", name)}
	}
	for _, part := range parts {
		if !identifierPattern.MatchString(part) {
			return &InvalidArgumentError{Message: fmt.Sprintf("invalid column name %q", name)}
		}
	}
	return nil
}

// dictionaryKey normalizes an arbitrary scalar to the canonical string form
// used on both sides of a match dictionary. Returns false for nil values
// and values that cannot be coerced to the declared key type.
func dictionaryKey(v any, kt KeyType) (string, bool) {
	if v == nil {
		return "", false
	}

	if kt == KeyInt {
		i, err := cast.ToInt64E(v)
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(i, 10), true
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// sortedDistinctKeys deduplicates and sorts parent key values for a batched
// "IN" constraint. Integer keys sort numerically, string keys
// lexicographically. Nil and non-coercible values are dropped.
func sortedDistinctKeys(values []any, kt KeyType) []any {
	seen := make(map[string]bool, len(values))
	out := make([]any, 0, len(values))

	for _, v := range values {
		key, ok := dictionaryKey(v, kt)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		if kt == KeyInt {
			n, _ := cast.ToInt64E(v)
			out = append(out, n)
		} else {
			s, _ := cast.ToStringE(v)
			out = append(out, s)
		}
	}

	if kt == KeyInt {
		sort.Slice(out, func(i, j int) bool { return out[i].(int64) < out[j].(int64) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].(string) < out[j].(string) })
	}
	return out
}

var sbPool = sync.Pool{
	New: func() any { return &strings.Builder{} },
}

// GetStringBuilder returns a pooled strings.Builder.
func GetStringBuilder() *strings.Builder {
	return sbPool.Get().(*strings.Builder)
}

// PutStringBuilder resets and returns a builder to the pool.
func PutStringBuilder(sb *strings.Builder) {
	sb.Reset()
	sbPool.Put(sb)
}

// writePlaceholders writes n comma-separated '?' markers.
func writePlaceholders(sb *strings.Builder, n int) {
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('?')
	}
}

func writeInt(sb *strings.Builder, n int) {
	sb.WriteString(strconv.Itoa(n))
}

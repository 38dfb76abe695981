package projection

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind selects the comparator used for a sortable field.
type Kind int

const (
	// KindString compares case-insensitively.
	KindString Kind = iota
	// KindNumericID parses the value as an integer; malformed values are 0.
	KindNumericID
	// KindNumber compares a float reported by Field.Number.
	KindNumber
	// KindDate parses a calendar date; invalid or empty values are the epoch.
	KindDate
	// KindList joins the values with ", " and compares case-insensitively.
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNumericID:
		return "numeric-id"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	default:
		return "string"
	}
}

// Field describes one sortable field. Exactly one accessor is set, matching Kind.
type Field[T any] struct {
	Kind   Kind
	Text   func(T) string
	List   func(T) []string
	Number func(T) (float64, bool)
}

func StringField[T any](get func(T) string) Field[T] {
	return Field[T]{Kind: KindString, Text: get}
}

func NumericIDField[T any](get func(T) string) Field[T] {
	return Field[T]{Kind: KindNumericID, Text: get}
}

func DateField[T any](get func(T) string) Field[T] {
	return Field[T]{Kind: KindDate, Text: get}
}

func ListField[T any](get func(T) []string) Field[T] {
	return Field[T]{Kind: KindList, List: get}
}

// NumberField sorts by get; a false second result marks the value missing.
func NumberField[T any](get func(T) (float64, bool)) Field[T] {
	return Field[T]{Kind: KindNumber, Number: get}
}

// sortKey is the decorated form of a field value. A missing key is lesser
// than every present key.
type sortKey struct {
	missing bool
	num     float64
	text    string
	numeric bool
	// integral keys compare on n so ids above 2^53 keep their order.
	integral bool
	n        int64
}

func (f Field[T]) key(r T) sortKey {
	switch f.Kind {
	case KindNumericID:
		s := f.Text(r)
		if s == "" {
			return sortKey{missing: true}
		}
		return sortKey{n: ParseID(s), integral: true}
	case KindNumber:
		v, ok := f.Number(r)
		if !ok {
			return sortKey{missing: true}
		}
		return sortKey{num: v, numeric: true}
	case KindDate:
		return sortKey{n: ParseDate(f.Text(r)).Unix(), integral: true}
	case KindList:
		items := f.List(r)
		if len(items) == 0 {
			return sortKey{missing: true}
		}
		return sortKey{text: strings.ToLower(strings.Join(items, ", "))}
	default:
		s := f.Text(r)
		if s == "" {
			return sortKey{missing: true}
		}
		return sortKey{text: strings.ToLower(s)}
	}
}

func compareKeys(a, b sortKey) int {
	switch {
	case a.missing && b.missing:
		return 0
	case a.missing:
		return -1
	case b.missing:
		return 1
	}
	if a.integral {
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	}
	if a.numeric {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	}
	return strings.Compare(a.text, b.text)
}

// sortStable orders items in place. Ties keep their relative order in both
// directions.
func sortStable[T any](items []T, f Field[T], dir Direction) {
	keys := make([]sortKey, len(items))
	for i, r := range items {
		keys[i] = f.key(r)
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		c := compareKeys(keys[idx[i]], keys[idx[j]])
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
	sorted := make([]T, len(items))
	for i, k := range idx {
		sorted[i] = items[k]
	}
	copy(items, sorted)
}

// ParseID parses a numeric identifier; malformed input yields 0.
func ParseID(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
}

// ParseDate parses the date layouts records carry; anything else is the epoch.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Unix(0, 0).UTC()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Unix(0, 0).UTC()
}

// ParseAmount parses a monetary string such as "$1,250,000.00"; malformed input yields 0.
func ParseAmount(s string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// Package projection turns a record collection plus the active filter and
// sort configuration into the ordered view a table renders.
//
// Projection is pure: the source slice is never reordered or modified and
// the same input always yields the same output.
package projection

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel filter values.
const (
	AllStatuses = "All"
	Me          = "__ME__"
)

// Direction of the active sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SenderRelation restricts records by who sent them relative to the current user.
type SenderRelation string

const (
	AnyoneSent SenderRelation = "anyone"
	SentByMe   SenderRelation = "me"
	SentToMe   SenderRelation = "to_me"
)

var ErrUnknownSortKey = errors.New("unknown sort key")

// Filters holds every recognized filter option. The zero value matches all records.
type Filters struct {
	SearchTerm string
	// Statuses containing AllStatuses, or empty, disables status filtering.
	Statuses []string
	// Assignees may contain Me, which stands for CurrentUser.
	Assignees []string
	Contracts []string
	Sender    SenderRelation
	// TabScope is nil when no tab restricts the view.
	TabScope    []string
	CurrentUser string
}

// Sort is the single active sort.
type Sort struct {
	Key       string
	Direction Direction
}

// Query bundles filters, the optional sort and a page window.
type Query struct {
	Filters Filters
	Sort    *Sort
	Offset  int
	// Limit <= 0 returns everything after Offset.
	Limit int
}

// Schema binds the projection to one record type.
type Schema[T any] struct {
	ID       func(T) string
	Status   func(T) string
	Assignee func(T) string
	Contract func(T) string
	Parties  func(T) []string
	// Search lists the scalar fields matched by the search term, in addition
	// to each party name.
	Search []func(T) string
	Fields map[string]Field[T]
}

// SortKeys returns the sortable keys of the schema in lexical order.
func (s Schema[T]) SortKeys() []string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate reports configuration errors Apply would otherwise silently ignore.
func (s Schema[T]) Validate(q Query) error {
	if q.Sort != nil {
		if _, ok := s.Fields[q.Sort.Key]; !ok {
			return fmt.Errorf("%w %q (valid: %s)", ErrUnknownSortKey, q.Sort.Key, strings.Join(s.SortKeys(), ", "))
		}
		switch q.Sort.Direction {
		case Asc, Desc, "":
		default:
			return fmt.Errorf("invalid sort direction %q", q.Sort.Direction)
		}
	}
	switch q.Filters.Sender {
	case AnyoneSent, SentByMe, SentToMe, "":
	default:
		return fmt.Errorf("invalid sender relation %q", q.Filters.Sender)
	}
	if q.Offset < 0 {
		return errors.New("invalid offset: must not be negative")
	}
	return nil
}

// Result is a projected page plus the size of the unpaged view.
type Result[T any] struct {
	Items []T
	Total int
}

// Run filters, sorts and pages records.
func Run[T any](records []T, s Schema[T], q Query) Result[T] {
	view := Apply(records, s, q.Filters, q.Sort)
	return Result[T]{Items: Paginate(view, q.Offset, q.Limit), Total: len(view)}
}

// Apply returns the records passing every active filter, ordered by srt.
// A nil srt, or one naming an unknown key, keeps input order.
func Apply[T any](records []T, s Schema[T], f Filters, srt *Sort) []T {
	out := Filter(records, s, f)
	if srt == nil {
		return out
	}
	field, ok := s.Fields[srt.Key]
	if !ok {
		return out
	}
	sortStable(out, field, srt.Direction)
	return out
}

// Filter returns a new slice with the records matching f, in input order.
func Filter[T any](records []T, s Schema[T], f Filters) []T {
	preds := s.predicates(f)
	out := make([]T, 0, len(records))
	for _, r := range records {
		if matchAll(preds, r) {
			out = append(out, r)
		}
	}
	return out
}

// Paginate returns the window [offset, offset+limit) of items.
func Paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func matchAll[T any](preds []func(T) bool, r T) bool {
	for _, p := range preds {
		if !p(r) {
			return false
		}
	}
	return true
}

// predicates builds only the active predicates; inactive options add nothing.
func (s Schema[T]) predicates(f Filters) []func(T) bool {
	var preds []func(T) bool
	if f.SearchTerm != "" {
		term := strings.ToLower(f.SearchTerm)
		preds = append(preds, func(r T) bool { return s.matchesSearch(r, term) })
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, AllStatuses) && s.Status != nil {
		statuses := f.Statuses
		preds = append(preds, func(r T) bool { return contains(statuses, s.Status(r)) })
	}
	if len(f.Assignees) > 0 && s.Assignee != nil {
		assignees, user := f.Assignees, f.CurrentUser
		if contains(assignees, Me) {
			preds = append(preds, func(r T) bool { return user != "" && s.Assignee(r) == user })
		} else {
			preds = append(preds, func(r T) bool { return contains(assignees, s.Assignee(r)) })
		}
	}
	if len(f.Contracts) > 0 && s.Contract != nil {
		contracts := f.Contracts
		preds = append(preds, func(r T) bool { return contains(contracts, s.Contract(r)) })
	}
	switch f.Sender {
	case SentByMe:
		user := f.CurrentUser
		preds = append(preds, func(r T) bool {
			return user != "" && s.Assignee != nil && s.Assignee(r) == user
		})
	case SentToMe:
		user := f.CurrentUser
		preds = append(preds, func(r T) bool {
			return user != "" && s.Parties != nil && contains(s.Parties(r), user)
		})
	}
	if f.TabScope != nil && s.Status != nil {
		scope := f.TabScope
		preds = append(preds, func(r T) bool { return contains(scope, s.Status(r)) })
	}
	return preds
}

func (s Schema[T]) matchesSearch(r T, term string) bool {
	for _, get := range s.Search {
		if strings.Contains(strings.ToLower(get(r)), term) {
			return true
		}
	}
	if s.Parties != nil {
		for _, p := range s.Parties(r) {
			if strings.Contains(strings.ToLower(p), term) {
				return true
			}
		}
	}
	return false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

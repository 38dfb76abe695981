package views

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"escra/internal/projection"
)

var ErrUnknownTab = errors.New("unknown tab")

// Params is the list request as it arrives from a query string or CLI flags.
type Params struct {
	Search    string
	Statuses  []string
	Assignees []string
	Contracts []string
	Sender    string
	Tab       string
	Sort      string
	Dir       string
	Offset    int
	Limit     int
}

// Query resolves params into a projection query. tabs maps tab names to
// their status scope; currentUser is the session user's display name.
func (p Params) Query(tabs map[string][]string, currentUser string) (projection.Query, error) {
	q := projection.Query{
		Filters: projection.Filters{
			SearchTerm:  p.Search,
			Statuses:    splitAll(p.Statuses),
			Assignees:   splitAll(p.Assignees),
			Contracts:   splitAll(p.Contracts),
			CurrentUser: currentUser,
		},
		Offset: p.Offset,
		Limit:  p.Limit,
	}
	sender, err := ParseSender(p.Sender)
	if err != nil {
		return q, err
	}
	q.Filters.Sender = sender
	tab := strings.TrimSpace(p.Tab)
	if tab != "" && !strings.EqualFold(tab, "all") {
		scope, ok := tabs[tab]
		if !ok {
			return q, fmt.Errorf("%w %q (valid: %s)", ErrUnknownTab, tab, strings.Join(tabNames(tabs), ", "))
		}
		q.Filters.TabScope = append([]string{}, scope...)
	}
	if key := strings.TrimSpace(p.Sort); key != "" {
		dir := projection.Direction(strings.ToLower(strings.TrimSpace(p.Dir)))
		if strings.HasPrefix(key, "-") {
			key, dir = key[1:], projection.Desc
		}
		if dir == "" {
			dir = projection.Asc
		}
		q.Sort = &projection.Sort{Key: key, Direction: dir}
	}
	return q, nil
}

// ParseSender accepts the API values and the labels the dashboard shows.
func ParseSender(v string) (projection.SenderRelation, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "anyone", "sent by anyone":
		return projection.AnyoneSent, nil
	case "me", "by_me", "sent by me":
		return projection.SentByMe, nil
	case "to_me", "sent to me":
		return projection.SentToMe, nil
	default:
		return "", fmt.Errorf("invalid sender %q: use anyone, me or to_me", v)
	}
}

// splitAll flattens comma separated values so both ?status=a&status=b and
// ?status=a,b work.
func splitAll(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func tabNames(tabs map[string][]string) []string {
	names := make([]string, 0, len(tabs))
	for name := range tabs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package projection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID       string
	Title    string
	Status   string
	Assignee string
	Contract string
	Parties  []string
	Sent     string
	Value    *float64
}

func amount(v float64) *float64 { return &v }

var rowSchema = Schema[row]{
	ID:       func(r row) string { return r.ID },
	Status:   func(r row) string { return r.Status },
	Assignee: func(r row) string { return r.Assignee },
	Contract: func(r row) string { return r.Contract },
	Parties:  func(r row) []string { return r.Parties },
	Search: []func(row) string{
		func(r row) string { return r.Title },
		func(r row) string { return r.ID },
		func(r row) string { return r.Contract },
	},
	Fields: map[string]Field[row]{
		"id":       NumericIDField(func(r row) string { return r.ID }),
		"title":    StringField(func(r row) string { return r.Title }),
		"status":   StringField(func(r row) string { return r.Status }),
		"parties":  ListField(func(r row) []string { return r.Parties }),
		"sent":     DateField(func(r row) string { return r.Sent }),
		"contract": NumericIDField(func(r row) string { return r.Contract }),
		"value": NumberField(func(r row) (float64, bool) {
			if r.Value == nil {
				return 0, false
			}
			return *r.Value, true
		}),
	},
}

func ids(rows []row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func fixture() []row {
	return []row{
		{ID: "1234", Title: "Purchase Agreement", Status: "Pending", Assignee: "John Smith", Contract: "9548", Parties: []string{"Robert Chen", "Eastside Properties"}, Sent: "2024-03-15", Value: amount(1250000)},
		{ID: "2345", Title: "Closing Disclosure", Status: "Pending", Assignee: "Sarah Johnson", Contract: "9550", Parties: []string{"Sarah Johnson", "Westside Holdings"}, Sent: "2024-03-14"},
		{ID: "3456", Title: "Inspection Report", Status: "Rejected", Assignee: "Michael Brown", Contract: "9145", Parties: []string{"BuildRight", "Horizon Developers"}, Sent: "2024-03-13", Value: amount(850000)},
		{ID: "4567", Title: "Lease Agreement", Status: "Expired", Assignee: "Emma Johnson", Contract: "8784", Parties: []string{"Pacific Properties"}, Sent: "2024-03-12", Value: amount(3200000)},
		{ID: "5678", Title: "Title Insurance", Status: "Voided", Assignee: "Robert Chen", Contract: "8423", Parties: []string{"John Smith", "Emma Johnson"}, Sent: "not a date"},
		{ID: "6789", Title: "Wire Authorization", Status: "Completed", Assignee: "John Smith", Contract: "9548", Parties: []string{"John Smith", "Robert Chen"}, Sent: "2024-03-10", Value: amount(1250000)},
	}
}

func TestStatusFilterKeepsRelativeOrder(t *testing.T) {
	records := []row{{ID: "3", Status: "Pending"}, {ID: "1", Status: "Completed"}, {ID: "2", Status: "Pending"}}
	got := Apply(records, rowSchema, Filters{Statuses: []string{"Pending"}}, nil)
	assert.Equal(t, []string{"3", "2"}, ids(got))
}

func TestStatusAllSentinelDisablesFilter(t *testing.T) {
	records := fixture()
	got := Apply(records, rowSchema, Filters{Statuses: []string{"All", "Pending"}}, nil)
	assert.Equal(t, ids(records), ids(got))

	got = Apply(records, rowSchema, Filters{Statuses: nil}, nil)
	assert.Equal(t, ids(records), ids(got))
}

func TestSortNumericIDNotLexicographic(t *testing.T) {
	records := []row{{ID: "10"}, {ID: "2"}, {ID: "1"}}
	got := Apply(records, rowSchema, Filters{}, &Sort{Key: "id", Direction: Asc})
	assert.Equal(t, []string{"1", "2", "10"}, ids(got))

	got = Apply(records, rowSchema, Filters{}, &Sort{Key: "id", Direction: Desc})
	assert.Equal(t, []string{"10", "2", "1"}, ids(got))
}

func TestSearchMatchesPartyNamesCaseInsensitive(t *testing.T) {
	records := []row{
		{ID: "1", Title: "Deed", Parties: []string{"John Smith", "Jane Doe"}},
		{ID: "2", Title: "Deed", Parties: []string{"Jane Doe"}},
	}
	got := Apply(records, rowSchema, Filters{SearchTerm: "smith"}, nil)
	assert.Equal(t, []string{"1"}, ids(got))

	got = Apply(records, rowSchema, Filters{SearchTerm: "SMITH"}, nil)
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestSearchCoversTitleIDAndContract(t *testing.T) {
	records := fixture()
	assert.Equal(t, []string{"3456"}, ids(Apply(records, rowSchema, Filters{SearchTerm: "inspection"}, nil)))
	assert.Equal(t, []string{"3456", "4567"}, ids(Apply(records, rowSchema, Filters{SearchTerm: "456"}, nil)))
	assert.Equal(t, []string{"1234", "6789"}, ids(Apply(records, rowSchema, Filters{SearchTerm: "9548"}, nil)))
	assert.Empty(t, Apply(records, rowSchema, Filters{SearchTerm: "no such thing"}, nil))
}

func TestAssigneeMeSentinel(t *testing.T) {
	records := []row{{ID: "1", Assignee: "Alice"}, {ID: "2", Assignee: "Bob"}}
	f := Filters{Assignees: []string{Me}, CurrentUser: "Alice"}
	assert.Equal(t, []string{"1"}, ids(Apply(records, rowSchema, f, nil)))

	// Me takes precedence over literal selections.
	f.Assignees = []string{Me, "Bob"}
	assert.Equal(t, []string{"1"}, ids(Apply(records, rowSchema, f, nil)))

	f.CurrentUser = ""
	assert.Empty(t, Apply(records, rowSchema, f, nil))
}

func TestAssigneeLiteralMembership(t *testing.T) {
	records := fixture()
	got := Apply(records, rowSchema, Filters{Assignees: []string{"Robert Chen", "Emma Johnson"}}, nil)
	assert.Equal(t, []string{"4567", "5678"}, ids(got))
}

func TestContractFilter(t *testing.T) {
	got := Apply(fixture(), rowSchema, Filters{Contracts: []string{"9548"}}, nil)
	assert.Equal(t, []string{"1234", "6789"}, ids(got))
}

func TestSenderRelation(t *testing.T) {
	records := fixture()
	byMe := Apply(records, rowSchema, Filters{Sender: SentByMe, CurrentUser: "John Smith"}, nil)
	assert.Equal(t, []string{"1234", "6789"}, ids(byMe))

	toMe := Apply(records, rowSchema, Filters{Sender: SentToMe, CurrentUser: "John Smith"}, nil)
	assert.Equal(t, []string{"5678", "6789"}, ids(toMe))

	anyone := Apply(records, rowSchema, Filters{Sender: AnyoneSent, CurrentUser: "John Smith"}, nil)
	assert.Len(t, anyone, len(records))
}

func TestTabScope(t *testing.T) {
	records := fixture()
	canceled := []string{"Rejected", "Expired", "Voided"}
	got := Apply(records, rowSchema, Filters{TabScope: canceled}, nil)
	assert.Equal(t, []string{"3456", "4567", "5678"}, ids(got))

	got = Apply(records, rowSchema, Filters{TabScope: canceled, Statuses: []string{"Expired"}}, nil)
	assert.Equal(t, []string{"4567"}, ids(got))

	got = Apply(records, rowSchema, Filters{TabScope: []string{}}, nil)
	assert.Empty(t, got)
}

func TestComposedFilterIsIntersection(t *testing.T) {
	records := fixture()
	options := []Filters{
		{SearchTerm: "agreement"},
		{Statuses: []string{"Pending", "Completed"}},
		{Assignees: []string{Me}, CurrentUser: "John Smith"},
		{Contracts: []string{"9548", "8784"}},
		{Sender: SentByMe, CurrentUser: "John Smith"},
		{TabScope: []string{"Pending"}},
	}
	combined := Filters{
		SearchTerm:  "agreement",
		Statuses:    []string{"Pending", "Completed"},
		Assignees:   []string{Me},
		Contracts:   []string{"9548", "8784"},
		Sender:      SentByMe,
		TabScope:    []string{"Pending"},
		CurrentUser: "John Smith",
	}

	want := map[string]bool{}
	for _, r := range records {
		want[r.ID] = true
	}
	for _, f := range options {
		pass := map[string]bool{}
		for _, r := range Apply(records, rowSchema, f, nil) {
			pass[r.ID] = true
		}
		for id := range want {
			if !pass[id] {
				delete(want, id)
			}
		}
	}
	got := Apply(records, rowSchema, combined, nil)
	require.Len(t, got, len(want))
	for _, r := range got {
		assert.True(t, want[r.ID], "unexpected record %s", r.ID)
	}
	assert.Equal(t, []string{"1234"}, ids(got))
}

func TestApplyDoesNotMutateSource(t *testing.T) {
	records := fixture()
	before := ids(records)
	_ = Apply(records, rowSchema, Filters{}, &Sort{Key: "title", Direction: Asc})
	_ = Apply(records, rowSchema, Filters{Statuses: []string{"Pending"}}, &Sort{Key: "id", Direction: Desc})
	assert.Equal(t, before, ids(records))
}

func TestNoSortKeepsInputOrder(t *testing.T) {
	records := fixture()
	got := Apply(records, rowSchema, Filters{}, nil)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("order changed (-want +got):\n%s", diff)
	}
}

func TestIdempotent(t *testing.T) {
	records := fixture()
	f := Filters{Statuses: []string{"Pending", "Completed", "Voided"}}
	s := &Sort{Key: "parties", Direction: Desc}
	first := Apply(records, rowSchema, f, s)
	second := Apply(records, rowSchema, f, s)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second run differs (-first +second):\n%s", diff)
	}
}

func TestRunPaginates(t *testing.T) {
	res := Run(fixture(), rowSchema, Query{Sort: &Sort{Key: "id", Direction: Asc}, Offset: 2, Limit: 2})
	assert.Equal(t, 6, res.Total)
	assert.Equal(t, []string{"3456", "4567"}, ids(res.Items))

	res = Run(fixture(), rowSchema, Query{Offset: 10})
	assert.Equal(t, 6, res.Total)
	assert.Empty(t, res.Items)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, rowSchema.Validate(Query{Sort: &Sort{Key: "id", Direction: Asc}}))
	assert.ErrorIs(t, rowSchema.Validate(Query{Sort: &Sort{Key: "nope"}}), ErrUnknownSortKey)
	assert.Error(t, rowSchema.Validate(Query{Sort: &Sort{Key: "id", Direction: "sideways"}}))
	assert.Error(t, rowSchema.Validate(Query{Filters: Filters{Sender: "someone"}}))
	assert.Error(t, rowSchema.Validate(Query{Offset: -1}))

	// Unknown keys are ignored by Apply itself.
	got := Apply(fixture(), rowSchema, Filters{}, &Sort{Key: "nope", Direction: Asc})
	assert.Equal(t, ids(fixture()), ids(got))
}

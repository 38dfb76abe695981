package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortByDateTreatsInvalidAsEpoch(t *testing.T) {
	got := Apply(fixture(), rowSchema, Filters{}, &Sort{Key: "sent", Direction: Asc})
	assert.Equal(t, []string{"5678", "6789", "4567", "3456", "2345", "1234"}, ids(got))
}

func TestSortByListJoinsLowercased(t *testing.T) {
	got := Apply(fixture(), rowSchema, Filters{}, &Sort{Key: "parties", Direction: Asc})
	assert.Equal(t, []string{"3456", "5678", "6789", "4567", "1234", "2345"}, ids(got))
}

func TestSortMissingValuesAreLesser(t *testing.T) {
	asc := Apply(fixture(), rowSchema, Filters{}, &Sort{Key: "value", Direction: Asc})
	assert.Equal(t, []string{"2345", "5678", "3456", "1234", "6789", "4567"}, ids(asc))

	desc := Apply(fixture(), rowSchema, Filters{}, &Sort{Key: "value", Direction: Desc})
	assert.Equal(t, []string{"4567", "1234", "6789", "3456", "2345", "5678"}, ids(desc))
}

func TestSortStringCaseInsensitive(t *testing.T) {
	records := []row{{ID: "1", Title: "cherry"}, {ID: "2", Title: "Banana"}, {ID: "3", Title: "apple"}}
	got := Apply(records, rowSchema, Filters{}, &Sort{Key: "title", Direction: Asc})
	assert.Equal(t, []string{"3", "2", "1"}, ids(got))
}

func TestSortMalformedIDIsZero(t *testing.T) {
	records := []row{{ID: "5"}, {ID: "abc"}, {ID: ""}, {ID: "-1"}}
	got := Apply(records, rowSchema, Filters{}, &Sort{Key: "id", Direction: Asc})
	assert.Equal(t, []string{"", "-1", "abc", "5"}, ids(got))
}

func TestSortNumericIDKeepsInt64Precision(t *testing.T) {
	records := []row{{ID: "9007199254740993"}, {ID: "9007199254740992"}, {ID: "9007199254740994"}}
	got := Apply(records, rowSchema, Filters{}, &Sort{Key: "id", Direction: Asc})
	assert.Equal(t, []string{"9007199254740992", "9007199254740993", "9007199254740994"}, ids(got))

	got = Apply(records, rowSchema, Filters{}, &Sort{Key: "id", Direction: Desc})
	assert.Equal(t, []string{"9007199254740994", "9007199254740993", "9007199254740992"}, ids(got))
}

func TestToggleDirectionReversesWithoutTies(t *testing.T) {
	for _, key := range []string{"id", "title", "sent"} {
		asc := ids(Apply(fixture(), rowSchema, Filters{}, &Sort{Key: key, Direction: Asc}))
		desc := ids(Apply(fixture(), rowSchema, Filters{}, &Sort{Key: key, Direction: Desc}))
		reversed := make([]string, len(desc))
		for i, id := range desc {
			reversed[len(desc)-1-i] = id
		}
		assert.Equal(t, asc, reversed, "key %s", key)
	}
}

func TestSortIsTotalOrder(t *testing.T) {
	records := fixture()
	for key, field := range rowSchema.Fields {
		for _, dir := range []Direction{Asc, Desc} {
			got := Apply(records, rowSchema, Filters{}, &Sort{Key: key, Direction: dir})
			for i := 0; i < len(got); i++ {
				for j := i + 1; j < len(got); j++ {
					c := compareKeys(field.key(got[i]), field.key(got[j]))
					if dir == Desc {
						c = -c
					}
					assert.LessOrEqual(t, c, 0, "key %s dir %s: %s before %s", key, dir, got[i].ID, got[j].ID)
				}
			}
		}
	}
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, int64(42), ParseID(" 42 "))
	assert.Equal(t, int64(0), ParseID("CNT-001"))
	assert.Equal(t, 1250000.5, ParseAmount("$1,250,000.50"))
	assert.Equal(t, 0.0, ParseAmount("n/a"))

	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ParseDate("2024-03-15"))
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), ParseDate("2024-03-15T10:30:00Z"))
	assert.Equal(t, time.Unix(0, 0).UTC(), ParseDate("someday"))
	assert.Equal(t, time.Unix(0, 0).UTC(), ParseDate(""))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "numeric-id", KindNumericID.String())
	assert.Equal(t, "list", KindList.String())
	assert.Equal(t, "string", KindString.String())
}

package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	rows      []Row
	selected  Query
	updated   Query
	values    Row
	inserted  []Row
	insertTbl string
}

func (r *recordingExecutor) Select(_ context.Context, q Query) ([]Row, error) {
	r.selected = q
	return r.rows, nil
}

func (r *recordingExecutor) Insert(_ context.Context, table string, rows []Row) ([]Row, error) {
	r.insertTbl = table
	r.inserted = rows
	return rows, nil
}

func (r *recordingExecutor) Update(_ context.Context, q Query, values Row) ([]Row, error) {
	r.updated = q
	r.values = values
	return r.rows, nil
}

func TestQueryBuilderComposesQuery(t *testing.T) {
	exec := &recordingExecutor{}
	_, err := From(exec, "recent_activities").Eq("phone", "5551234567").Order("date", false).Limit(5).Select(context.Background())
	require.NoError(t, err)

	require.Equal(t, Query{
		Table:   "recent_activities",
		Filters: []Filter{{Column: "phone", Value: "5551234567"}},
		Order:   &Order{Column: "date", Ascending: false},
		Limit:   5,
	}, exec.selected)
}

func TestSingleRequiresExactlyOneRow(t *testing.T) {
	ctx := context.Background()

	exec := &recordingExecutor{}
	_, err := From(exec, "customer_rewards").Eq("phone", "1").Single(ctx)
	require.ErrorIs(t, err, ErrNoRows)

	exec.rows = []Row{{"phone": "1"}, {"phone": "1"}}
	_, err = From(exec, "customer_rewards").Eq("phone", "1").Single(ctx)
	require.ErrorIs(t, err, ErrMultipleRows)

	exec.rows = []Row{{"phone": "1"}}
	row, err := From(exec, "customer_rewards").Eq("phone", "1").Single(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", row["phone"])
}

func TestEmptyWritesAreRejected(t *testing.T) {
	ctx := context.Background()
	exec := &recordingExecutor{}

	_, err := From(exec, "customer_rewards").Insert(ctx)
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = From(exec, "customer_rewards").Eq("phone", "1").Update(ctx, Row{})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQueryValidate(t *testing.T) {
	require.NoError(t, Query{Table: "customer_rewards", Filters: []Filter{{Column: "total_points"}}}.Validate())
	require.ErrorIs(t, Query{Table: "customer_rewards; drop"}.Validate(), ErrInvalidQuery)
	require.ErrorIs(t, Query{Table: "t", Order: &Order{Column: "Date"}}.Validate(), ErrInvalidQuery)
	require.ErrorIs(t, Query{Table: "t", Limit: -1}.Validate(), ErrInvalidQuery)
}

func TestDecodeUsesJSONTags(t *testing.T) {
	type record struct {
		Phone       string    `json:"phone"`
		TotalPoints int       `json:"total_points"`
		Date        time.Time `json:"date"`
	}
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var out record
	require.NoError(t, Decode(Row{"phone": "5551234567", "total_points": int64(1200), "date": when}, &out))
	require.Equal(t, record{Phone: "5551234567", TotalPoints: 1200, Date: when}, out)

	all, err := DecodeAll[record]([]Row{{"phone": "a"}, {"phone": "b"}})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "b", all[1].Phone)
}

func TestAuthEventsFanOut(t *testing.T) {
	var events AuthEvents
	first, cancelFirst := events.Subscribe()
	second, cancelSecond := events.Subscribe()
	defer cancelSecond()

	events.Publish(AuthEvent{Type: EventSignedIn})
	require.Equal(t, EventSignedIn, (<-first).Type)
	require.Equal(t, EventSignedIn, (<-second).Type)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	require.False(t, open)

	events.Publish(AuthEvent{Type: EventSignedOut})
	require.Equal(t, EventSignedOut, (<-second).Type)
}

func TestAuthEventsDropOldestWhenFull(t *testing.T) {
	var events AuthEvents
	ch, cancel := events.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		events.Publish(AuthEvent{Type: EventSignedIn})
	}
	events.Publish(AuthEvent{Type: EventSignedOut})

	var last AuthEvent
	for len(ch) > 0 {
		last = <-ch
	}
	require.Equal(t, EventSignedOut, last.Type)
}

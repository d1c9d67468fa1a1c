package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch/internal/crawler"
)

func TestRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStatsStoreWithPool(mock, "stats")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	stats := crawler.Statistics{
		TopSearches:   []crawler.WordCount{{Word: "go", Count: 3}},
		DocCounts:     map[string]int64{"r1:8080": 12},
		AvgResponseMs: map[string]float64{"r1:8080": 1.25},
		UpdatedAt:     now,
	}

	mock.ExpectExec("INSERT INTO stats").
		WithArgs(
			now,
			[]byte(`[{"word":"go","count":3}]`),
			[]byte(`{"r1:8080":12}`),
			[]byte(`{"r1:8080":1.25}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Record(context.Background(), stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEmptySnapshotUsesEmptyJSON(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStatsStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO statistics_history").
		WithArgs(time.Time{}, []byte(`[]`), []byte(`{}`), []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Record(context.Background(), crawler.Statistics{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStatsStoreWithPool(mock, "stats")
	require.NoError(t, err)
	mock.ExpectExec("INSERT INTO stats").WillReturnError(errors.New("boom"))

	err = store.Record(context.Background(), crawler.Statistics{})
	require.ErrorContains(t, err, "insert statistics")
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStatsStoreWithPool(mock, "stats")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS stats").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStatsStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewStatsStoreWithPool(nil, "stats")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewStatsStoreWithPool(mock, "bad-name;")
	require.Error(t, err)
}

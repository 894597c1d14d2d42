package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/snapvault/snapvault/internal/jobstore"
)

func TestStoreCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	rec := jobstore.Record{
		ID:        "job-1",
		Status:    jobstore.StatusPending,
		URLsCount: 5,
		CreatedAt: created,
	}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(rec.ID, rec.Status, rec.URLsCount, rec.Completed, rec.ArchiveKey, rec.ProcessedAt, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	require.Error(t, store.Create(context.Background(), jobstore.Record{}))
}

func TestStoreUpdateBuildsPatchSQL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	status := jobstore.StatusCompleted
	completed := 3
	archiveKey := "jobs/job-1/captures-1.zip"
	processedAt := time.Unix(1700000100, 0).UTC()

	query := "UPDATE jobs SET status = $1, completed = $2, archive_key = $3, processed_at = $4 WHERE id = $5"
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(status, completed, archiveKey, processedAt, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.Update(context.Background(), "job-1", jobstore.Update{
		Status:      &status,
		Completed:   &completed,
		ArchiveKey:  &archiveKey,
		ProcessedAt: &processedAt,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateEmptyPatchIsNoOp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	require.NoError(t, store.Update(context.Background(), "job-1", jobstore.Update{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateMissingJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	status := jobstore.StatusProcessing
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = $1 WHERE id = $2")).
		WithArgs(status, "absent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Update(context.Background(), "absent", jobstore.Update{Status: &status})
	require.ErrorIs(t, err, jobstore.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	processed := time.Unix(1700000500, 0).UTC()

	cols := []string{"id", "status", "urls_count", "completed", "archive_key", "processed_at", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("job-1", jobstore.StatusCompleted, 5, 3, "jobs/job-1/captures-1.zip", &processed, created))

	rec, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", rec.ID)
	require.Equal(t, jobstore.StatusCompleted, rec.Status)
	require.Equal(t, 5, rec.URLsCount)
	require.Equal(t, 3, rec.Completed)
	require.Equal(t, "jobs/job-1/captures-1.zip", rec.ArchiveKey)
	require.NotNil(t, rec.ProcessedAt)
	require.Equal(t, processed, *rec.ProcessedAt)
	require.Equal(t, created, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs("absent").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Get(context.Background(), "absent")
	require.ErrorIs(t, err, jobstore.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreList(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "jobs")
	require.NoError(t, err)

	newer := time.Unix(1700000200, 0).UTC()
	older := time.Unix(1700000100, 0).UTC()

	cols := []string{"id", "status", "urls_count", "completed", "archive_key", "processed_at", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM jobs ORDER BY created_at DESC").
		WithArgs(2, 0).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("job-2", jobstore.StatusProcessing, 3, 1, "", nil, newer).
			AddRow("job-1", jobstore.StatusPending, 5, 0, "", nil, older))

	recs, err := store.List(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "job-2", recs[0].ID)
	require.Nil(t, recs[0].ProcessedAt)
	require.Equal(t, "job-1", recs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "jobs; DROP TABLE jobs")
	require.Error(t, err)

	_, err = NewWithPool(nil, "jobs")
	require.Error(t, err)
}

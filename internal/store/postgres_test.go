package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/boq-extractor/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

// anyArgs matches n positional arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS extractions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateExtraction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO extractions`).
		WithArgs(pgxmock.AnyArg(), "boq.xlsx", "excel", "pending", "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 0.0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := &model.Extraction{Filename: "boq.xlsx", DocumentType: model.DocExcel}
	require.NoError(t, s.CreateExtraction(context.Background(), e))
	assert.NotEmpty(t, e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateExtraction_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	args := append([]any{"completed"}, anyArgs(7)...)
	mock.ExpectExec(`UPDATE extractions SET status = \$1`).
		WithArgs(append(args, "nope")...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateExtraction(context.Background(), &model.Extraction{ID: "nope", Status: model.StatusCompleted})
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetExtraction_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, filename, document_type, status, .* FROM extractions WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetExtraction(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateClarifications_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"clarifications"}, clarificationCopyColumns).WillReturnResult(2)

	cs := pendingClarifications("ext-1", 2)
	require.NoError(t, s.CreateClarifications(context.Background(), cs))
	assert.NotEmpty(t, cs[0].ID)
	assert.NotEqual(t, cs[0].ID, cs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateClarifications_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.CreateClarifications(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveClarification_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)UPDATE clarifications SET status = \$1, .* WHERE id = \$6 AND status = 'pending'`).
		WithArgs("answered", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.ResolveClarification(context.Background(), &model.Clarification{
		ID: "c1", Status: model.ClarificationAnswered, ResolvedAt: &now,
	})
	assert.True(t, eris.Is(err, ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveClarification_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE clarifications SET status`).
		WithArgs("skipped", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("gone").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.ResolveClarification(context.Background(), &model.Clarification{ID: "gone", Status: model.ClarificationSkipped})
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clarifications WHERE extraction_id = \$1 AND status = 'pending'`).
		WithArgs("ext-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountPending(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRule_UniqueViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO learning_rules`).
		WithArgs(anyArgs(13)...).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.CreateRule(context.Background(), newRule("stainless", "relevant"))
	assert.True(t, eris.Is(err, ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindActiveRule_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM learning_rules WHERE learning_type = \$1 AND pattern_key = \$2 AND is_active`).
		WithArgs("correction", "k").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.FindActiveRule(context.Background(), model.LearningCorrection, "k")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRule_InsertsWhenAbsent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM learning_rules WHERE .* FOR UPDATE`).
		WithArgs("correction", "200NB pipe::material").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO learning_rules`).
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	var gotExisting *model.LearningRule
	called := false
	r, err := s.UpsertRule(context.Background(), model.LearningCorrection, "200NB pipe::material",
		func(existing *model.LearningRule) (*model.LearningRule, error) {
			called = true
			gotExisting = existing
			return newRule("200NB pipe::material", "carbon steel"), nil
		})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, gotExisting)
	assert.NotEmpty(t, r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRule_CallbackErrorRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("correction", "k").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.UpsertRule(context.Background(), model.LearningCorrection, "k",
		func(*model.LearningRule) (*model.LearningRule, error) { return nil, eris.New("rejected") })
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

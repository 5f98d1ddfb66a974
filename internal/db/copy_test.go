package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type question struct {
	id   string
	text string
}

func questionRow(q *question) ([]any, error) {
	return []any{q.id, q.text}, nil
}

func TestCopyRows_Empty(t *testing.T) {
	n, err := CopyRows[question](context.TODO(), nil, "clarifications", []string{"id", "question"}, nil, questionRow)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyRows_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"clarifications"}, []string{"id", "question"}).WillReturnResult(2)

	items := []question{{"c1", "What material?"}, {"c2", "What diameter?"}}
	n, err := CopyRows(context.Background(), mock, "clarifications", []string{"id", "question"}, items, questionRow)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_ShortWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"clarifications"}, []string{"id", "question"}).WillReturnResult(1)

	items := []question{{"a", "x"}, {"b", "y"}}
	_, err = CopyRows(context.Background(), mock, "clarifications", []string{"id", "question"}, items, questionRow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrote 1 of 2 rows")
}

func TestCopyRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"clarifications"}, []string{"id"}).WillReturnError(errors.New("copy failed"))

	_, err = CopyRows(context.Background(), mock, "clarifications", []string{"id"}, []question{{"a", "x"}},
		func(q *question) ([]any, error) { return []any{q.id}, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into clarifications")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_RowErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = CopyRows(context.Background(), mock, "clarifications", []string{"id"}, []question{{"a", "x"}},
		func(*question) ([]any, error) { return nil, errors.New("bad context") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 for clarifications")

	_, err = CopyRows(context.Background(), mock, "clarifications", []string{"id"}, []question{{"a", "x"}}, questionRow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 2 values, want 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

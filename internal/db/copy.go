package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is implemented by both Pool and pgx.Tx.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyRows bulk-inserts items into table over the COPY protocol, converting
// each one to column values with toRow. Conversion runs before the copy
// starts, so a toRow error leaves the table untouched.
func CopyRows[T any](ctx context.Context, c Copier, table string, columns []string, items []T, toRow func(*T) ([]any, error)) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(items))
	for i := range items {
		row, err := toRow(&items[i])
		if err != nil {
			return 0, eris.Wrapf(err, "db: row %d for %s", i, table)
		}
		if len(row) != len(columns) {
			return 0, eris.Errorf("db: row %d for %s has %d values, want %d", i, table, len(row), len(columns))
		}
		rows = append(rows, row)
	}

	n, err := c.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	if n != int64(len(items)) {
		return n, eris.Errorf("db: copy into %s wrote %d of %d rows", table, n, len(items))
	}
	return n, nil
}

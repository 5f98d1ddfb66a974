package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/boq-extractor/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// A single writer connection keeps rule upserts serialized.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extractions (
	id                  TEXT PRIMARY KEY,
	filename            TEXT NOT NULL,
	document_type       TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	provider            TEXT NOT NULL DEFAULT '',
	product_types       TEXT NOT NULL DEFAULT '[]',
	items               TEXT NOT NULL DEFAULT '[]',
	specification_cells TEXT NOT NULL DEFAULT '[]',
	relevance_score     REAL NOT NULL DEFAULT 0,
	error_message       TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS clarifications (
	id                    TEXT PRIMARY KEY,
	extraction_id         TEXT NOT NULL REFERENCES extractions(id),
	clarification_type    TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	question              TEXT NOT NULL,
	context               TEXT NOT NULL DEFAULT '{}',
	item_index            INTEGER,
	subject               TEXT NOT NULL DEFAULT '',
	field                 TEXT NOT NULL DEFAULT '',
	response_type         TEXT,
	response_text         TEXT,
	response_document_ref TEXT,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	resolved_at           DATETIME
);

CREATE TABLE IF NOT EXISTS learning_rules (
	id                       TEXT PRIMARY KEY,
	learning_type            TEXT NOT NULL,
	source                   TEXT NOT NULL,
	category                 TEXT NOT NULL DEFAULT '',
	pattern_key              TEXT NOT NULL,
	learned_value            TEXT NOT NULL,
	original_value           TEXT,
	applicable_product_types TEXT NOT NULL DEFAULT '[]',
	confidence               REAL NOT NULL,
	confirmation_count       INTEGER NOT NULL DEFAULT 1,
	is_active                INTEGER NOT NULL DEFAULT 1,
	created_at               DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extractions_status ON extractions(status);
CREATE INDEX IF NOT EXISTS idx_clarifications_extraction ON clarifications(extraction_id, status);
CREATE INDEX IF NOT EXISTS idx_clarifications_pending_created ON clarifications(created_at) WHERE status = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS idx_learning_rules_active_key ON learning_rules(learning_type, pattern_key) WHERE is_active = 1;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const extractionColumns = `id, filename, document_type, status, provider, product_types, items, specification_cells, relevance_score, error_message, created_at, updated_at`

func (s *SQLiteStore) CreateExtraction(ctx context.Context, e *model.Extraction) error {
	prepareExtraction(e)
	j, err := encodeExtraction(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extractions (`+extractionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Filename, string(e.DocumentType), string(e.Status), e.Provider,
		string(j.productTypes), string(j.items), string(j.cells), e.RelevanceScore, e.ErrorMessage,
		e.CreatedAt, e.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert extraction")
}

func (s *SQLiteStore) UpdateExtraction(ctx context.Context, e *model.Extraction) error {
	j, err := encodeExtraction(e)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE extractions SET status = ?, provider = ?, product_types = ?, items = ?, specification_cells = ?,
			relevance_score = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(e.Status), e.Provider, string(j.productTypes), string(j.items), string(j.cells),
		e.RelevanceScore, e.ErrorMessage, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update extraction %s", e.ID)
	}
	return checkRowsAffected(res, "extraction", e.ID)
}

func (s *SQLiteStore) GetExtraction(ctx context.Context, id string) (*model.Extraction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+extractionColumns+` FROM extractions WHERE id = ?`, id)
	return scanExtraction(row)
}

const clarificationColumns = `id, extraction_id, clarification_type, status, question, context, item_index, subject, field, response_type, response_text, response_document_ref, created_at, resolved_at`

func (s *SQLiteStore) CreateClarifications(ctx context.Context, cs []model.Clarification) error {
	if len(cs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin clarifications tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clarifications (`+clarificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert clarification")
	}
	defer stmt.Close()

	for i := range cs {
		c := &cs[i]
		prepareClarification(c)
		ctxJSON, err := marshalContext(c.Context)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.ExtractionID, string(c.Type), string(c.Status), c.Question, string(ctxJSON),
			c.ItemIndex, c.Subject, c.Field, responseTypeArg(c.ResponseType), c.ResponseText, c.ResponseDocumentRef,
			c.CreatedAt, c.ResolvedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert clarification for extraction %s", c.ExtractionID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit clarifications")
}

func (s *SQLiteStore) GetClarification(ctx context.Context, id string) (*model.Clarification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clarificationColumns+` FROM clarifications WHERE id = ?`, id)
	return scanClarification(row)
}

func (s *SQLiteStore) ResolveClarification(ctx context.Context, c *model.Clarification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clarifications SET status = ?, response_type = ?, response_text = ?, response_document_ref = ?, resolved_at = ?
			WHERE id = ? AND status = 'pending'`,
		string(c.Status), responseTypeArg(c.ResponseType), c.ResponseText, c.ResponseDocumentRef, c.ResolvedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve clarification %s", c.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if _, err := s.GetClarification(ctx, c.ID); err != nil {
			return err
		}
		return eris.Wrapf(ErrConflict, "clarification %s is no longer pending", c.ID)
	}
	return nil
}

func (s *SQLiteStore) ListClarifications(ctx context.Context, filter ClarificationFilter) ([]model.Clarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM clarifications WHERE 1=1`
	var args []any
	if filter.ExtractionID != "" {
		query += ` AND extraction_id = ?`
		args = append(args, filter.ExtractionID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedBefore.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, filter.CreatedBefore.UTC())
	}
	query += ` ORDER BY created_at, rowid LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clarifications")
	}
	defer rows.Close()

	var out []model.Clarification
	for rows.Next() {
		c, err := scanClarification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list clarifications iterate")
}

func (s *SQLiteStore) CountPending(ctx context.Context, extractionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clarifications WHERE extraction_id = ? AND status = 'pending'`,
		extractionID,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count pending clarifications %s", extractionID)
}

const ruleColumns = `id, learning_type, source, category, pattern_key, learned_value, original_value, applicable_product_types, confidence, confirmation_count, is_active, created_at, updated_at`

func (s *SQLiteStore) UpsertRule(ctx context.Context, learningType model.LearningType, patternKey string, fn RuleUpdate) (*model.LearningRule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin rule tx")
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := scanRule(tx.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM learning_rules WHERE learning_type = ? AND pattern_key = ? AND is_active = 1`,
		string(learningType), patternKey))
	if err != nil && !eris.Is(err, ErrNotFound) {
		return nil, err
	}

	next, err := fn(existing)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if err := insertRule(ctx, tx, next); err != nil {
			return nil, err
		}
	} else {
		next.ID = existing.ID
		next.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE learning_rules SET learned_value = ?, original_value = ?, confidence = ?, confirmation_count = ?,
				is_active = ?, updated_at = ? WHERE id = ?`,
			next.LearnedValue, next.OriginalValue, next.Confidence, next.ConfirmationCount, next.IsActive,
			next.UpdatedAt, next.ID,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: update rule %s", next.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit rule")
	}
	return next, nil
}

func (s *SQLiteStore) CreateRule(ctx context.Context, r *model.LearningRule) error {
	return insertRule(ctx, s.db, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRule(ctx context.Context, ex execer, r *model.LearningRule) error {
	prepareRule(r)
	types, err := marshalList(r.ApplicableProductTypes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal applicable product types")
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO learning_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.LearningType), string(r.Source), r.Category, r.PatternKey, r.LearnedValue, r.OriginalValue,
		string(types), r.Confidence, r.ConfirmationCount, r.IsActive, r.CreatedAt, r.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "active %s rule exists for %q", r.LearningType, r.PatternKey)
	}
	return eris.Wrap(err, "sqlite: insert rule")
}

func (s *SQLiteStore) FindActiveRule(ctx context.Context, learningType model.LearningType, patternKey string) (*model.LearningRule, error) {
	return scanRule(s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM learning_rules WHERE learning_type = ? AND pattern_key = ? AND is_active = 1`,
		string(learningType), patternKey))
}

func (s *SQLiteStore) ListRules(ctx context.Context, filter RuleFilter) ([]model.LearningRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM learning_rules WHERE 1=1`
	var args []any
	if filter.LearningType != "" {
		query += ` AND learning_type = ?`
		args = append(args, string(filter.LearningType))
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close()

	var out []model.LearningRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rules iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanExtraction(row scannable) (*model.Extraction, error) {
	var e model.Extraction
	var j struct{ productTypes, items, cells string }
	var errMsg sql.NullString

	err := row.Scan(&e.ID, &e.Filename, &e.DocumentType, &e.Status, &e.Provider,
		&j.productTypes, &j.items, &j.cells, &e.RelevanceScore, &errMsg, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "extraction")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan extraction")
	}
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	if err := decodeExtraction(&e, extractionJSON{
		productTypes: []byte(j.productTypes),
		items:        []byte(j.items),
		cells:        []byte(j.cells),
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanClarification(row scannable) (*model.Clarification, error) {
	var c model.Clarification
	var ctxJSON string
	var itemIndex sql.NullInt64
	var respType, respText, respRef sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&c.ID, &c.ExtractionID, &c.Type, &c.Status, &c.Question, &ctxJSON, &itemIndex,
		&c.Subject, &c.Field, &respType, &respText, &respRef, &c.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "clarification")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan clarification")
	}
	if err := json.Unmarshal([]byte(ctxJSON), &c.Context); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal clarification context")
	}
	if itemIndex.Valid {
		idx := int(itemIndex.Int64)
		c.ItemIndex = &idx
	}
	if respType.Valid {
		c.ResponseType = responseTypePtr(&respType.String)
	}
	if respText.Valid {
		c.ResponseText = &respText.String
	}
	if respRef.Valid {
		c.ResponseDocumentRef = &respRef.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}

func scanRule(row scannable) (*model.LearningRule, error) {
	var r model.LearningRule
	var original sql.NullString
	var types string

	err := row.Scan(&r.ID, &r.LearningType, &r.Source, &r.Category, &r.PatternKey, &r.LearnedValue,
		&original, &types, &r.Confidence, &r.ConfirmationCount, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "learning rule")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan rule")
	}
	if original.Valid {
		r.OriginalValue = &original.String
	}
	if strings.TrimSpace(types) != "" {
		if err := json.Unmarshal([]byte(types), &r.ApplicableProductTypes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal applicable product types")
		}
	}
	if len(r.ApplicableProductTypes) == 0 {
		r.ApplicableProductTypes = nil
	}
	return &r, nil
}

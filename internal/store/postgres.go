package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/boq-extractor/internal/db"
	"github.com/sells-group/boq-extractor/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_extraction":    `SELECT ` + extractionColumns + ` FROM extractions WHERE id = $1`,
	"get_clarification": `SELECT ` + clarificationColumns + ` FROM clarifications WHERE id = $1`,
	"count_pending":     `SELECT COUNT(*) FROM clarifications WHERE extraction_id = $1 AND status = 'pending'`,
	"find_active_rule":  `SELECT ` + ruleColumns + ` FROM learning_rules WHERE learning_type = $1 AND pattern_key = $2 AND is_active`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extractions (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	filename            TEXT NOT NULL,
	document_type       TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	provider            TEXT NOT NULL DEFAULT '',
	product_types       JSONB NOT NULL DEFAULT '[]',
	items               JSONB NOT NULL DEFAULT '[]',
	specification_cells JSONB NOT NULL DEFAULT '[]',
	relevance_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message       TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clarifications (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	extraction_id         TEXT NOT NULL REFERENCES extractions(id),
	clarification_type    TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	question              TEXT NOT NULL,
	context               JSONB NOT NULL DEFAULT '{}',
	item_index            INTEGER,
	subject               TEXT NOT NULL DEFAULT '',
	field                 TEXT NOT NULL DEFAULT '',
	response_type         TEXT,
	response_text         TEXT,
	response_document_ref TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at           TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS learning_rules (
	id                       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	learning_type            TEXT NOT NULL,
	source                   TEXT NOT NULL,
	category                 TEXT NOT NULL DEFAULT '',
	pattern_key              TEXT NOT NULL,
	learned_value            TEXT NOT NULL,
	original_value           TEXT,
	applicable_product_types JSONB NOT NULL DEFAULT '[]',
	confidence               DOUBLE PRECISION NOT NULL,
	confirmation_count       INTEGER NOT NULL DEFAULT 1,
	is_active                BOOLEAN NOT NULL DEFAULT true,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extractions_status ON extractions(status);
CREATE INDEX IF NOT EXISTS idx_clarifications_extraction ON clarifications(extraction_id, status);
CREATE INDEX IF NOT EXISTS idx_clarifications_pending_created ON clarifications(created_at) WHERE status = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS idx_learning_rules_active_key ON learning_rules(learning_type, pattern_key) WHERE is_active;
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateExtraction(ctx context.Context, e *model.Extraction) error {
	prepareExtraction(e)
	j, err := encodeExtraction(e)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO extractions (`+extractionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Filename, string(e.DocumentType), string(e.Status), e.Provider,
		j.productTypes, j.items, j.cells, e.RelevanceScore, e.ErrorMessage, e.CreatedAt, e.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert extraction")
}

func (s *PostgresStore) UpdateExtraction(ctx context.Context, e *model.Extraction) error {
	j, err := encodeExtraction(e)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE extractions SET status = $1, provider = $2, product_types = $3, items = $4, specification_cells = $5,
			relevance_score = $6, error_message = $7, updated_at = $8 WHERE id = $9`,
		string(e.Status), e.Provider, j.productTypes, j.items, j.cells,
		e.RelevanceScore, e.ErrorMessage, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update extraction %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "extraction %s", e.ID)
	}
	return nil
}

func (s *PostgresStore) GetExtraction(ctx context.Context, id string) (*model.Extraction, error) {
	var e model.Extraction
	var docType, status string
	var j extractionJSON

	err := s.pool.QueryRow(ctx,
		`SELECT `+extractionColumns+` FROM extractions WHERE id = $1`, id,
	).Scan(&e.ID, &e.Filename, &docType, &status, &e.Provider,
		&j.productTypes, &j.items, &j.cells, &e.RelevanceScore, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "extraction %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get extraction %s", id)
	}
	e.DocumentType = model.DocumentType(docType)
	e.Status = model.ExtractionStatus(status)
	if err := decodeExtraction(&e, j); err != nil {
		return nil, err
	}
	return &e, nil
}

var clarificationCopyColumns = []string{
	"id", "extraction_id", "clarification_type", "status", "question", "context", "item_index",
	"subject", "field", "response_type", "response_text", "response_document_ref", "created_at", "resolved_at",
}

func (s *PostgresStore) CreateClarifications(ctx context.Context, cs []model.Clarification) error {
	_, err := db.CopyRows(ctx, s.pool, "clarifications", clarificationCopyColumns, cs, func(c *model.Clarification) ([]any, error) {
		prepareClarification(c)
		ctxJSON, err := marshalContext(c.Context)
		if err != nil {
			return nil, err
		}
		return []any{
			c.ID, c.ExtractionID, string(c.Type), string(c.Status), c.Question, ctxJSON, c.ItemIndex,
			c.Subject, c.Field, responseTypeArg(c.ResponseType), c.ResponseText, c.ResponseDocumentRef,
			c.CreatedAt, c.ResolvedAt,
		}, nil
	})
	return eris.Wrap(err, "postgres: insert clarifications")
}

func (s *PostgresStore) GetClarification(ctx context.Context, id string) (*model.Clarification, error) {
	c, err := scanPgClarification(s.pool.QueryRow(ctx,
		`SELECT `+clarificationColumns+` FROM clarifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "clarification %s", id)
	}
	return c, err
}

func (s *PostgresStore) ResolveClarification(ctx context.Context, c *model.Clarification) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE clarifications SET status = $1, response_type = $2, response_text = $3, response_document_ref = $4, resolved_at = $5
			WHERE id = $6 AND status = 'pending'`,
		string(c.Status), responseTypeArg(c.ResponseType), c.ResponseText, c.ResponseDocumentRef, c.ResolvedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve clarification %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clarifications WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return eris.Wrapf(err, "postgres: check clarification %s", c.ID)
		}
		if !exists {
			return eris.Wrapf(ErrNotFound, "clarification %s", c.ID)
		}
		return eris.Wrapf(ErrConflict, "clarification %s is no longer pending", c.ID)
	}
	return nil
}

func (s *PostgresStore) ListClarifications(ctx context.Context, filter ClarificationFilter) ([]model.Clarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM clarifications WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ExtractionID != "" {
		query += fmt.Sprintf(` AND extraction_id = $%d`, argIdx)
		args = append(args, filter.ExtractionID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedBefore.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.CreatedBefore)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clarifications")
	}
	defer rows.Close()

	var out []model.Clarification
	for rows.Next() {
		c, err := scanPgClarification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list clarifications iterate")
}

func (s *PostgresStore) CountPending(ctx context.Context, extractionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clarifications WHERE extraction_id = $1 AND status = 'pending'`,
		extractionID,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count pending clarifications %s", extractionID)
}

func (s *PostgresStore) UpsertRule(ctx context.Context, learningType model.LearningType, patternKey string, fn RuleUpdate) (*model.LearningRule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin rule tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := scanPgRule(tx.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM learning_rules WHERE learning_type = $1 AND pattern_key = $2 AND is_active FOR UPDATE`,
		string(learningType), patternKey))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	next, err := fn(existing)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if err := insertPgRule(ctx, tx, next); err != nil {
			return nil, err
		}
	} else {
		next.ID = existing.ID
		next.UpdatedAt = time.Now().UTC()
		if _, err := tx.Exec(ctx,
			`UPDATE learning_rules SET learned_value = $1, original_value = $2, confidence = $3, confirmation_count = $4,
				is_active = $5, updated_at = $6 WHERE id = $7`,
			next.LearnedValue, next.OriginalValue, next.Confidence, next.ConfirmationCount, next.IsActive,
			next.UpdatedAt, next.ID,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: update rule %s", next.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit rule")
	}
	return next, nil
}

func (s *PostgresStore) CreateRule(ctx context.Context, r *model.LearningRule) error {
	return insertPgRule(ctx, s.pool, r)
}

// pgExecer is satisfied by db.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertPgRule(ctx context.Context, ex pgExecer, r *model.LearningRule) error {
	prepareRule(r)
	types, err := marshalList(r.ApplicableProductTypes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal applicable product types")
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO learning_rules (`+ruleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, string(r.LearningType), string(r.Source), r.Category, r.PatternKey, r.LearnedValue, r.OriginalValue,
		types, r.Confidence, r.ConfirmationCount, r.IsActive, r.CreatedAt, r.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "active %s rule exists for %q", r.LearningType, r.PatternKey)
	}
	return eris.Wrap(err, "postgres: insert rule")
}

func (s *PostgresStore) FindActiveRule(ctx context.Context, learningType model.LearningType, patternKey string) (*model.LearningRule, error) {
	r, err := scanPgRule(s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM learning_rules WHERE learning_type = $1 AND pattern_key = $2 AND is_active`,
		string(learningType), patternKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "learning rule %s", patternKey)
	}
	return r, err
}

func (s *PostgresStore) ListRules(ctx context.Context, filter RuleFilter) ([]model.LearningRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM learning_rules WHERE true`
	args := []any{}
	if filter.LearningType != "" {
		query += ` AND learning_type = $1`
		args = append(args, string(filter.LearningType))
	}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()

	var out []model.LearningRule
	for rows.Next() {
		r, err := scanPgRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rules iterate")
}

// scanPgClarification returns pgx.ErrNoRows unwrapped so callers can map it.
func scanPgClarification(row pgx.Row) (*model.Clarification, error) {
	var c model.Clarification
	var typ, status string
	var ctxJSON []byte
	var respType *string

	err := row.Scan(&c.ID, &c.ExtractionID, &typ, &status, &c.Question, &ctxJSON, &c.ItemIndex,
		&c.Subject, &c.Field, &respType, &c.ResponseText, &c.ResponseDocumentRef, &c.CreatedAt, &c.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan clarification")
	}
	c.Type = model.ClarificationType(typ)
	c.Status = model.ClarificationStatus(status)
	c.ResponseType = responseTypePtr(respType)
	if err := unmarshalOptional(ctxJSON, &c.Context); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal clarification context")
	}
	return &c, nil
}

func scanPgRule(row pgx.Row) (*model.LearningRule, error) {
	var r model.LearningRule
	var learningType, source string
	var types []byte

	err := row.Scan(&r.ID, &learningType, &source, &r.Category, &r.PatternKey, &r.LearnedValue,
		&r.OriginalValue, &types, &r.Confidence, &r.ConfirmationCount, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan rule")
	}
	r.LearningType = model.LearningType(learningType)
	r.Source = model.RuleSource(source)
	if len(types) > 0 {
		if err := json.Unmarshal(types, &r.ApplicableProductTypes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal applicable product types")
		}
	}
	if len(r.ApplicableProductTypes) == 0 {
		r.ApplicableProductTypes = nil
	}
	return &r, nil
}

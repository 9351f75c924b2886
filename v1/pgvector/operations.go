package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pgv "github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

const userIDKey = "user_id"

// SQLSTATE codes raised by concurrent CREATE ... IF NOT EXISTS.
const (
	sqlStateUniqueViolation = "23505"
	sqlStateDuplicateTable  = "42P07"
)

// record is the row written by Insert.
type record struct {
	ID        string     `gorm:"column:id;primaryKey"`
	Embedding pgv.Vector `gorm:"column:embedding"`
	Payload   string     `gorm:"column:payload"`
}

// resultRow is the row read by Search, Get and List.
type resultRow struct {
	ID        string
	Embedding pgv.Vector
	Payload   string
	Score     float64
}

// ──────────────────────────────────────────────────────────────
// Initialize
// ──────────────────────────────────────────────────────────────
//
// Initialize creates the pgvector extension (when configured), the table and
// the optional HNSW index. An existing table with another embedding size is
// rejected with vectordb.ErrDimensionMismatch.
func (p *PGVector) Initialize(ctx context.Context) (err error) {
	ctx, span, start := p.begin(ctx, "initialize")
	defer func() { err = p.end(span, "initialize", "", start, err, 0) }()

	db := p.DB().WithContext(ctx)
	if p.cfg.CreateExtension {
		if err := createIfNotExists(db, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("creating extension: %w", err)
		}
	}

	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, embedding vector(%d) NOT NULL, payload jsonb NOT NULL DEFAULT '{}'::jsonb)",
		p.table(), p.cfg.Dimension)
	if err := createIfNotExists(db, ddl); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	size, err := p.columnDimension(db)
	if err != nil {
		return err
	}
	if size != p.cfg.Dimension {
		return &vectordb.DimensionError{Expected: p.cfg.Dimension, Actual: size, Index: -1}
	}

	if p.cfg.HNSWIndex {
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)",
			quoteIdent(p.cfg.Table+"_embedding_idx"), p.table(), p.distance().opclass)
		if err := createIfNotExists(db, ddl); err != nil {
			return fmt.Errorf("creating hnsw index: %w", err)
		}
	}

	if p.logger != nil {
		p.logger.Info("pgvector table ready", nil, map[string]interface{}{
			"table":     p.cfg.Table,
			"dimension": p.cfg.Dimension,
			"distance":  p.cfg.Distance,
		})
	}
	return nil
}

// createIfNotExists runs an idempotent DDL statement, tolerating the catalog
// conflicts raised when another session creates the same object concurrently.
func createIfNotExists(db *gorm.DB, ddl string) error {
	err := db.Exec(ddl).Error
	if code, ok := sqlState(err); ok && (code == sqlStateUniqueViolation || code == sqlStateDuplicateTable) {
		return nil
	}
	return remoteError(err)
}

// columnDimension reads the declared size of the embedding column.
func (p *PGVector) columnDimension(db *gorm.DB) (int, error) {
	var size int
	err := db.Raw(
		"SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass(?) AND attname = 'embedding'",
		p.table(),
	).Scan(&size).Error
	if err != nil {
		return 0, remoteError(err)
	}
	return size, nil
}

// ──────────────────────────────────────────────────────────────
// Insert
// ──────────────────────────────────────────────────────────────
//
// Insert upserts every record in a single transaction, Config.BatchSize rows
// per statement. Either all records are written or none. When an id repeats
// within the call, the last occurrence wins.
func (p *PGVector) Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []map[string]any) (err error) {
	ctx, span, start := p.begin(ctx, "insert")
	defer func() { err = p.end(span, "insert", vectordb.BatchSubject(len(vectors)), start, err, int64(len(vectors))) }()

	records, err := vectordb.BuildRecords(p.cfg.Dimension, vectors, ids, payloads)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	rows := make([]record, 0, len(records))
	positions := make(map[string]int, len(records))
	for _, r := range records {
		raw, err := encodePayload(r.ID, r.Metadata)
		if err != nil {
			return err
		}
		row := record{ID: r.ID, Embedding: pgv.NewVector(r.Values), Payload: raw}
		if i, seen := positions[r.ID]; seen {
			rows[i] = row
			continue
		}
		positions[r.ID] = len(rows)
		rows = append(rows, row)
	}

	err = p.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(p.cfg.Table).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"embedding", "payload"}),
			}).
			CreateInBatches(&rows, p.cfg.BatchSize).Error
	})
	return remoteError(err)
}

// ──────────────────────────────────────────────────────────────
// Search
// ──────────────────────────────────────────────────────────────
//
// Search returns the limit rows closest to query among those matching filter.
// Scores are 1 - cosine distance for the cosine metric, the inner product for
// inner_product and the negated distance for euclidean.
func (p *PGVector) Search(ctx context.Context, query []float32, limit int, filter vectordb.Filter) (results []vectordb.SearchResult, err error) {
	ctx, span, start := p.begin(ctx, "search")
	defer func() { err = p.end(span, "search", "", start, err, int64(len(results))) }()

	if err := vectordb.ValidateQuery(p.cfg.Dimension, query, limit); err != nil {
		return nil, err
	}
	where, empty, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.query.limit", limit), attribute.Bool("db.query.filtered", where != nil))
	if empty {
		return []vectordb.SearchResult{}, nil
	}

	vec := pgv.NewVector(query)
	dist := p.distance()
	distExpr := "embedding " + dist.operator + " ?"

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, payload::text AS payload, embedding::text AS embedding, %s AS score FROM %s",
		fmt.Sprintf(dist.score, distExpr), p.table())
	args := []any{vec}
	if where != nil {
		b.WriteString(" WHERE " + where.SQL)
		args = append(args, where.Args...)
	}
	b.WriteString(" ORDER BY " + distExpr + " LIMIT ?")
	args = append(args, vec, limit)

	var rows []resultRow
	if err := p.DB().WithContext(ctx).Raw(b.String(), args...).Scan(&rows).Error; err != nil {
		return nil, remoteError(err)
	}
	return convertRows(rows, true)
}

// ──────────────────────────────────────────────────────────────
// Get
// ──────────────────────────────────────────────────────────────
//
// Get returns the row with the given id, or nil when it does not exist.
func (p *PGVector) Get(ctx context.Context, id string) (result *vectordb.SearchResult, err error) {
	ctx, span, start := p.begin(ctx, "get")
	defer func() { err = p.end(span, "get", vectordb.IDSubject(id), start, err, 0) }()

	if err := vectordb.ValidateID(id); err != nil {
		return nil, err
	}

	var rows []resultRow
	err = p.DB().WithContext(ctx).Raw(
		fmt.Sprintf("SELECT id, payload::text AS payload, embedding::text AS embedding FROM %s WHERE id = ?", p.table()),
		id,
	).Scan(&rows).Error
	if err != nil {
		return nil, remoteError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	results, err := convertRows(rows, false)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// ──────────────────────────────────────────────────────────────
// Update
// ──────────────────────────────────────────────────────────────
//
// Update replaces the vector and/or payload of an existing row in a single
// statement. A nil vector or payload keeps the stored value.
func (p *PGVector) Update(ctx context.Context, id string, vector []float32, payload map[string]any) (err error) {
	ctx, span, start := p.begin(ctx, "update")
	defer func() { err = p.end(span, "update", vectordb.IDSubject(id), start, err, 0) }()

	if err := vectordb.ValidateID(id); err != nil {
		return err
	}
	values := map[string]any{}
	if vector != nil {
		if err := vectordb.ValidateVector(p.cfg.Dimension, vector); err != nil {
			return err
		}
		values["embedding"] = pgv.NewVector(vector)
	}
	if payload != nil {
		raw, err := encodePayload(id, payload)
		if err != nil {
			return err
		}
		values["payload"] = gorm.Expr("?::jsonb", raw)
	}

	db := p.DB().WithContext(ctx)
	if len(values) == 0 {
		var exists bool
		err := db.Raw(fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)", p.table()), id).Scan(&exists).Error
		if err != nil {
			return remoteError(err)
		}
		if !exists {
			return fmt.Errorf("%w: %q", vectordb.ErrNotFound, id)
		}
		return nil
	}

	res := db.Table(p.cfg.Table).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return remoteError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %q", vectordb.ErrNotFound, id)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────
// Delete
// ──────────────────────────────────────────────────────────────
//
// Delete removes the row with the given id. A missing id is not an error.
func (p *PGVector) Delete(ctx context.Context, id string) (err error) {
	ctx, span, start := p.begin(ctx, "delete")
	defer func() { err = p.end(span, "delete", vectordb.IDSubject(id), start, err, 0) }()

	if err := vectordb.ValidateID(id); err != nil {
		return err
	}
	err = p.DB().WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", p.table()), id).Error
	return remoteError(err)
}

// DeleteCollection drops the table. A missing table is not an error.
func (p *PGVector) DeleteCollection(ctx context.Context) (err error) {
	ctx, span, start := p.begin(ctx, "delete_collection")
	defer func() { err = p.end(span, "delete_collection", "", start, err, 0) }()

	if err := p.DB().WithContext(ctx).Exec("DROP TABLE IF EXISTS " + p.table()).Error; err != nil {
		return remoteError(err)
	}
	if p.logger != nil {
		p.logger.Warn("pgvector table dropped", nil, map[string]interface{}{"table": p.cfg.Table})
	}
	return nil
}

// ──────────────────────────────────────────────────────────────
// List
// ──────────────────────────────────────────────────────────────
//
// List returns up to limit rows matching filter, ordered by id, together with
// the number of matching rows. Both are read from the same snapshot.
func (p *PGVector) List(ctx context.Context, filter vectordb.Filter, limit int) (results []vectordb.SearchResult, total int, err error) {
	ctx, span, start := p.begin(ctx, "list")
	defer func() { err = p.end(span, "list", "", start, err, int64(len(results))) }()

	if err := vectordb.ValidateLimit(limit); err != nil {
		return nil, 0, err
	}
	where, empty, err := buildWhere(filter)
	if err != nil {
		return nil, 0, err
	}
	if empty {
		return []vectordb.SearchResult{}, 0, nil
	}

	predicate := ""
	var args []any
	if where != nil {
		predicate = " WHERE " + where.SQL
		args = where.Args
	}

	var count int64
	var rows []resultRow
	err = p.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw("SELECT count(*) FROM "+p.table()+predicate, args...).Scan(&count).Error; err != nil {
			return err
		}
		query := fmt.Sprintf("SELECT id, payload::text AS payload, embedding::text AS embedding FROM %s%s ORDER BY id LIMIT ?",
			p.table(), predicate)
		pageArgs := append(append([]any{}, args...), limit)
		return tx.Raw(query, pageArgs...).Scan(&rows).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, remoteError(err)
	}

	results, err = convertRows(rows, false)
	if err != nil {
		return nil, 0, err
	}
	return results, int(count), nil
}

// ──────────────────────────────────────────────────────────────
// GetUserID / SetUserID
// ──────────────────────────────────────────────────────────────
//
// GetUserID returns the user id stored in "<table>_migrations". The first
// call stores Config.UserID, or a random UUID when it is unset. Concurrent
// first calls agree on a single value.
func (p *PGVector) GetUserID(ctx context.Context) (userID string, err error) {
	ctx, span, start := p.begin(ctx, "get_user_id")
	defer func() { err = p.end(span, "get_user_id", "", start, err, 0) }()

	db := p.DB().WithContext(ctx)
	if err := p.ensureMigrations(db); err != nil {
		return "", err
	}

	candidate := p.cfg.UserID
	if candidate == "" {
		candidate = uuid.NewString()
	}
	err = db.Exec(
		fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING", p.migrationsTable()),
		userIDKey, candidate,
	).Error
	if err != nil {
		return "", remoteError(err)
	}

	err = db.Raw(fmt.Sprintf("SELECT value FROM %s WHERE key = ?", p.migrationsTable()), userIDKey).Scan(&userID).Error
	if err != nil {
		return "", remoteError(err)
	}
	if userID == "" {
		return "", vectordb.Malformed("user id row missing from %s", p.cfg.Table+"_migrations")
	}
	return userID, nil
}

// SetUserID stores userID, replacing any previous value.
func (p *PGVector) SetUserID(ctx context.Context, userID string) (err error) {
	ctx, span, start := p.begin(ctx, "set_user_id")
	defer func() { err = p.end(span, "set_user_id", "", start, err, 0) }()

	if userID == "" {
		return fmt.Errorf("%w: user id cannot be empty", vectordb.ErrInvalidArgument)
	}

	db := p.DB().WithContext(ctx)
	if err := p.ensureMigrations(db); err != nil {
		return err
	}
	err = db.Exec(
		fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value", p.migrationsTable()),
		userIDKey, userID,
	).Error
	return remoteError(err)
}

func (p *PGVector) ensureMigrations(db *gorm.DB) error {
	return createIfNotExists(db, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (key text PRIMARY KEY, value text NOT NULL)", p.migrationsTable()))
}

// Describe reports the table name, embedding size, metric and row count.
func (p *PGVector) Describe(ctx context.Context) (info *vectordb.Collection, err error) {
	ctx, span, start := p.begin(ctx, "describe")
	defer func() { err = p.end(span, "describe", "", start, err, 0) }()

	db := p.DB().WithContext(ctx)
	var count int64
	if err := db.Raw("SELECT count(*) FROM " + p.table()).Scan(&count).Error; err != nil {
		if code, ok := sqlState(err); ok && code == sqlStateUndefinedTable {
			return nil, fmt.Errorf("%w: table %q", vectordb.ErrNotFound, p.cfg.Table)
		}
		return nil, remoteError(err)
	}
	size, err := p.columnDimension(db)
	if err != nil {
		return nil, err
	}
	return &vectordb.Collection{
		Name:      p.cfg.Table,
		Dimension: size,
		Metric:    strings.ToLower(p.cfg.Distance),
		Count:     uint64(count),
	}, nil
}

func (p *PGVector) table() string {
	return quoteIdent(p.cfg.Table)
}

func (p *PGVector) migrationsTable() string {
	return quoteIdent(p.cfg.Table + "_migrations")
}

func (p *PGVector) distance() distanceOperator {
	return distanceOperators[strings.ToLower(p.cfg.Distance)]
}

// encodePayload renders metadata as a JSON object.
func encodePayload(id string, metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: payload for %q is not encodable: %v", vectordb.ErrInvalidArgument, id, err)
	}
	return string(raw), nil
}

// convertRows decodes payloads and vectors of result rows.
func convertRows(rows []resultRow, scored bool) ([]vectordb.SearchResult, error) {
	results := make([]vectordb.SearchResult, 0, len(rows))
	for _, r := range rows {
		payload := map[string]any{}
		if r.Payload != "" {
			if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
				return nil, vectordb.Malformed("payload of %q: %v", r.ID, err)
			}
			if payload == nil {
				payload = map[string]any{}
			}
		}
		res := vectordb.SearchResult{
			ID:      r.ID,
			Payload: payload,
			Vector:  r.Embedding.Slice(),
		}
		if scored {
			res.Score = float32(r.Score)
		}
		results = append(results, res)
	}
	return results, nil
}

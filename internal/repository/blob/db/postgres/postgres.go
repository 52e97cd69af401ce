package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"
)

const blobColumns = `id, key, filename, content_type, metadata, byte_size, checksum, variant, original_blob_id, created_at`

// Repository persists blob rows and generic owning-entity rows in
// Postgres. Calls outside a transaction go through the retrying dbpg
// helpers; calls inside a transaction run on the *sql.Tx directly.
type Repository struct {
	db      *dbpg.DB
	retries retry.Strategy
}

func New(db *dbpg.DB, retries retry.Strategy) *Repository {
	return &Repository{
		db:      db,
		retries: retries,
	}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) InsertBlob(ctx context.Context, tx repo.Tx, b *domain.Blob) error {
	metadata, err := json.Marshal(orEmpty(b.Metadata))
	if err != nil {
		return fmt.Errorf("failed to marshal blob metadata: %w", err)
	}

	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO blobs (
			id, key, filename, content_type, metadata,
			byte_size, checksum, variant, original_blob_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.exec(ctx, tx, query,
		b.ID,
		b.Key,
		b.Filename,
		b.ContentType,
		metadata,
		b.ByteSize,
		b.Checksum,
		nullable(b.Variant),
		nullable(b.OriginalBlobID),
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert blob: %w", translateConstraint(err))
	}
	return nil
}

func (r *Repository) GetBlob(ctx context.Context, tx repo.Tx, id string) (*domain.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blobs WHERE id = $1`

	row, err := r.queryRow(ctx, tx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query blob: %w", err)
	}

	b, err := scanBlob(row)
	if err == sql.ErrNoRows {
		return nil, repo.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan blob: %w", err)
	}
	return b, nil
}

// GetBlobByKey returns (nil, nil) when no row holds the key, so the
// orphan guard can probe without special-casing an error.
func (r *Repository) GetBlobByKey(ctx context.Context, tx repo.Tx, key string) (*domain.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blobs WHERE key = $1`

	row, err := r.queryRow(ctx, tx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query blob by key: %w", err)
	}

	b, err := scanBlob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan blob: %w", err)
	}
	return b, nil
}

func (r *Repository) GetVariant(ctx context.Context, tx repo.Tx, originalID, label, contentType string) (*domain.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blobs
		WHERE original_blob_id = $1 AND variant = $2 AND content_type = $3
	`

	row, err := r.queryRow(ctx, tx, query, originalID, label, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to query variant: %w", err)
	}

	b, err := scanBlob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan variant: %w", err)
	}
	return b, nil
}

func (r *Repository) ListVariants(ctx context.Context, tx repo.Tx, originalID string) ([]domain.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blobs
		WHERE original_blob_id = $1
		ORDER BY created_at
	`

	rows, err := r.query(ctx, tx, query, originalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Blob
	for rows.Next() {
		b, err := scanBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}
	return variants, nil
}

func (r *Repository) DeleteBlob(ctx context.Context, tx repo.Tx, id string) error {
	result, err := r.exec(ctx, tx, `DELETE FROM blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return repo.ErrBlobNotFound
	}
	return nil
}

func (r *Repository) InsertEntity(ctx context.Context, tx repo.Tx, table string, row map[string]any) error {
	cols := sortedColumns(row)

	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		names = append(names, pq.QuoteIdentifier(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, row[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)

	if _, err := r.exec(ctx, tx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, translateConstraint(err))
	}
	return nil
}

func (r *Repository) UpdateEntity(ctx context.Context, tx repo.Tx, table, id string, changes map[string]any) error {
	cols := sortedColumns(changes)
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), i+1))
		args = append(args, changes[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		pq.QuoteIdentifier(table),
		strings.Join(sets, ", "),
		len(cols)+1,
	)

	result, err := r.exec(ctx, tx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, translateConstraint(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return repo.ErrEntityNotFound
	}
	return nil
}

func (r *Repository) DeleteEntity(ctx context.Context, tx repo.Tx, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(table))

	result, err := r.exec(ctx, tx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return repo.ErrEntityNotFound
	}
	return nil
}

func (r *Repository) GetEntity(ctx context.Context, tx repo.Tx, table, id string) (map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", pq.QuoteIdentifier(table))

	rows, err := r.query(ctx, tx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading %s row: %w", table, err)
		}
		return nil, repo.ErrEntityNotFound
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		if raw, ok := values[i].([]byte); ok {
			row[col] = string(raw)
		} else {
			row[col] = values[i]
		}
	}
	return row, nil
}

func (r *Repository) exec(ctx context.Context, tx repo.Tx, query string, args ...any) (sql.Result, error) {
	if t, ok := tx.(*sql.Tx); ok && t != nil {
		return t.ExecContext(ctx, query, args...)
	}
	return r.db.ExecWithRetry(ctx, r.retries, query, args...)
}

func (r *Repository) queryRow(ctx context.Context, tx repo.Tx, query string, args ...any) (*sql.Row, error) {
	if t, ok := tx.(*sql.Tx); ok && t != nil {
		return t.QueryRowContext(ctx, query, args...), nil
	}
	return r.db.QueryRowWithRetry(ctx, r.retries, query, args...)
}

func (r *Repository) query(ctx context.Context, tx repo.Tx, query string, args ...any) (*sql.Rows, error) {
	if t, ok := tx.(*sql.Tx); ok && t != nil {
		return t.QueryContext(ctx, query, args...)
	}
	return r.db.QueryWithRetry(ctx, r.retries, query, args...)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlob(s scanner) (*domain.Blob, error) {
	var (
		b        domain.Blob
		metadata []byte
		variant  sql.NullString
		original sql.NullString
	)

	err := s.Scan(
		&b.ID,
		&b.Key,
		&b.Filename,
		&b.ContentType,
		&metadata,
		&b.ByteSize,
		&b.Checksum,
		&variant,
		&original,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &b.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blob metadata: %w", err)
		}
	}
	b.Variant = variant.String
	b.OriginalBlobID = original.String
	return &b, nil
}

func translateConstraint(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "variant") {
			return fmt.Errorf("%w: %v", repo.ErrDuplicateVariant, err)
		}
		return fmt.Errorf("%w: %v", repo.ErrDuplicateKey, err)
	}
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func sortedColumns(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

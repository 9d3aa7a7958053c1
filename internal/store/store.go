package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/hearthkeep/hearth/internal/manuals"
	"github.com/hearthkeep/hearth/utils"
)

// Store persists document metadata in Postgres.
type Store struct {
	DB *sql.DB
}

func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveDocument upserts one archived document. Re-downloading the same
// URL replaces the stored file reference instead of duplicating the row.
func (s *Store) SaveDocument(ctx context.Context, d manuals.Document) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO documents (id, make, model, make_norm, model_norm, url, source, content_type, size_bytes, file_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO UPDATE SET
			source = EXCLUDED.source,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			file_id = EXCLUDED.file_id`,
		d.ID, d.Make, d.Model, utils.NormalizeField(d.Make), utils.NormalizeField(d.Model),
		d.URL, string(d.Source), d.ContentType, d.SizeBytes, d.FileID, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// ListDocuments returns archived documents for a product, newest first.
// Empty make or model matches everything on that field.
func (s *Store) ListDocuments(ctx context.Context, mk, mdl string) ([]manuals.Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, make, model, url, source, content_type, size_bytes, file_id, created_at
		FROM documents
		WHERE ($1 = '' OR make_norm = $1) AND ($2 = '' OR model_norm = $2)
		ORDER BY created_at DESC`,
		utils.NormalizeField(mk), utils.NormalizeField(mdl),
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []manuals.Document
	for rows.Next() {
		var d manuals.Document
		var source string
		if err := rows.Scan(&d.ID, &d.Make, &d.Model, &d.URL, &source, &d.ContentType, &d.SizeBytes, &d.FileID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Source = manuals.Source(source)
		out = append(out, d)
	}
	return out, rows.Err()
}

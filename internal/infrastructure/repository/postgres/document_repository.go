package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// DocumentRepository is the durable document registry.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	upload_date TIMESTAMPTZ NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	category TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	extractor TEXT NOT NULL DEFAULT '',
	indexed_backends JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_documents_upload_date ON documents(upload_date DESC);
CREATE INDEX IF NOT EXISTS idx_documents_file_type ON documents(file_type);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const selectColumns = `id, filename, file_type, file_size, upload_date, title, body, summary, tags, category, author, extractor, indexed_backends`

// Save upserts the whole record in one statement.
func (r *DocumentRepository) Save(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save document", errors.New("document id is required"))
	}
	tagsJSON, err := marshalList(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	backendsJSON, err := marshalList(doc.IndexedBackends)
	if err != nil {
		return fmt.Errorf("marshal indexed backends: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+selectColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	filename = EXCLUDED.filename,
	file_type = EXCLUDED.file_type,
	file_size = EXCLUDED.file_size,
	upload_date = EXCLUDED.upload_date,
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	summary = EXCLUDED.summary,
	tags = EXCLUDED.tags,
	category = EXCLUDED.category,
	author = EXCLUDED.author,
	extractor = EXCLUDED.extractor,
	indexed_backends = EXCLUDED.indexed_backends
`,
		doc.ID, doc.Filename, doc.FileType, doc.FileSize, doc.UploadDate.UTC(), doc.Title, doc.Body,
		doc.Summary, tagsJSON, doc.Category, doc.Author, doc.Extractor, backendsJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error) {
	out := make(map[string]*domain.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal ids: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+selectColumns+` FROM documents
WHERE id IN (SELECT jsonb_array_elements_text($1::jsonb))
`, string(idsJSON))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM documents ORDER BY upload_date DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id %s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var tagsRaw, backendsRaw []byte
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.UploadDate, &doc.Title, &doc.Body,
		&doc.Summary, &tagsRaw, &doc.Category, &doc.Author, &doc.Extractor, &backendsRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(backendsRaw, &doc.IndexedBackends); err != nil {
		return nil, fmt.Errorf("unmarshal indexed backends: %w", err)
	}
	return &doc, nil
}

func marshalList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/sagechat/sage/internal/model"
)

// Querier defines the database operations Store needs. *pgxpool.Pool
// satisfies it. Defined by the consumer, not the provider (similar to
// http.RoundTripper, io.Reader).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages knowledge documents with vector search over
// PostgreSQL + pgvector. Embeddings for stored documents are generated on
// Add; query embeddings are supplied by the caller so one embedding can
// serve both retrieval and downstream accounting.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	embedder model.Embedder
	logger   *slog.Logger
}

// New creates a new Store instance.
func New(db Querier, embedder model.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}
}

// Add inserts or updates a document. The content is embedded with the
// configured embedder before the upsert.
func (s *Store) Add(ctx context.Context, doc Document) error {
	emb, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("%w: embedding document %q: %w", ErrStorage, doc.ID, err)
	}
	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: empty embedding for document %q", ErrStorage, doc.ID)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshaling metadata for %q: %w", ErrStorage, doc.ID, err)
	}

	createdAt := doc.CreateAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		doc.ID, doc.Content, pgvector.NewVector(emb.Vector), metadataJSON, createdAt)
	if err != nil {
		return fmt.Errorf("%w: upserting document %q: %w", ErrStorage, doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search returns the documents most similar to the given query embedding,
// ordered by cosine similarity descending. The embedding is computed by the
// caller, not here.
//
// Example usage:
//
//	results, err := store.Search(ctx, emb.Vector,
//	    knowledge.WithTopK(10),
//	    knowledge.WithFilter("source_type", "file"))
func (s *Store) Search(ctx context.Context, embedding []float32, opts ...SearchOption) ([]Result, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrRetrieval)
	}
	cfg := buildSearchConfig(opts)

	// Bound vector scans so a cold index cannot stall the caller.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec := pgvector.NewVector(embedding)

	var rows pgx.Rows
	var err error
	if len(cfg.filter) > 0 {
		filterJSON, marshalErr := json.Marshal(cfg.filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("%w: marshaling filter: %w", ErrRetrieval, marshalErr)
		}
		rows, err = s.db.Query(queryCtx, `
			SELECT id, content, metadata, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM documents
			WHERE metadata @> $2
			ORDER BY embedding <=> $1
			LIMIT $3`,
			vec, filterJSON, cfg.topK)
	} else {
		rows, err = s.db.Query(queryCtx, `
			SELECT id, content, metadata, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM documents
			ORDER BY embedding <=> $1
			LIMIT $2`,
			vec, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: search query timeout: %w", ErrRetrieval, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	defer rows.Close()

	results := make([]Result, 0, cfg.topK)
	for rows.Next() {
		var (
			res          Result
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&res.Document.ID, &res.Document.Content, &metadataJSON,
			&res.Document.CreateAt, &similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning result: %w", ErrRetrieval, err)
		}
		if err := json.Unmarshal(metadataJSON, &res.Document.Metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", res.Document.ID, "error", err)
			res.Document.Metadata = make(map[string]string)
		}
		res.Similarity = float32(similarity)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	s.logger.Debug("search complete", "results", len(results), "top_k", cfg.topK)
	return results, nil
}

// Count returns the number of documents matching the given filter.
// If filter is nil or empty, it returns the total count of all documents.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	var count int64
	var err error

	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return 0, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		err = s.db.QueryRow(ctx,
			`SELECT count(*) FROM documents WHERE metadata @> $1`, filterJSON).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}

	// Overflow protection for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}

	return int(count), nil
}

// Delete removes a document by id. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("%w: deleting document %q: %w", ErrStorage, docID, err)
	}

	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// ListBySourceType lists documents of one source type, newest first, without
// similarity scoring. Useful for showing what has been indexed.
func (s *Store) ListBySourceType(ctx context.Context, sourceType string, limit int) ([]Document, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}
	if sourceType != SourceTypeFile && sourceType != SourceTypeSystem {
		return nil, fmt.Errorf("invalid source type %q", sourceType)
	}

	filterJSON, err := json.Marshal(map[string]string{"source_type": sourceType})
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, content, metadata, created_at
		FROM documents
		WHERE metadata @> $1
		ORDER BY created_at DESC
		LIMIT $2`,
		filterJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	documents := make([]Document, 0, limit)
	for rows.Next() {
		var doc Document
		var metadataJSON []byte
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &doc.CreateAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "doc_id", doc.ID, "error", err)
			doc.Metadata = make(map[string]string)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	return documents, nil
}

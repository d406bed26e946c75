package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// Compile-time check that SQLiteStore implements CorpusStore.
var _ CorpusStore = (*SQLiteStore)(nil)

// SQLiteStore keeps the corpus in the corpus_rows table and answers queries
// with an exhaustive scan. Embeddings are stored as little-endian float64 blobs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB. The corpus_rows table must already
// exist (created via storage migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Rebuild deletes every row and inserts rows in a single transaction.
func (s *SQLiteStore) Rebuild(ctx context.Context, rows []CorpusRow) error {
	dims, err := validateRows(rows)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM corpus_rows`); err != nil {
		return fmt.Errorf("truncating corpus: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corpus_rows (chunk_id, chunk_text, embedding, dimensions)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ChunkID, r.ChunkText, encodeFloat64s(r.Embedding), dims); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", r.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rebuild: %w", err)
	}
	return nil
}

// Search scores every row against vector and returns the best topK.
func (s *SQLiteStore) Search(ctx context.Context, vector []float64, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	// One statement reads one snapshot, so scores and text always come from
	// the same corpus generation even while Rebuild commits concurrently.
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, chunk_text, embedding FROM corpus_rows`)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	best := newTopK(topK)
	var buf []float64
	scanned := 0

	for rows.Next() {
		var id string
		var text sql.RawBytes
		var blob []byte
		if err := rows.Scan(&id, &text, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat64sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		if len(buf) != len(vector) {
			return nil, dimensionError(id, len(buf), len(vector))
		}
		c := candidate{id: id, score: dotProduct(vector, buf), index: scanned}
		if best.admits(c) {
			// RawBytes is only valid until the next call to Next.
			c.text = string(text)
			best.offer(c)
		}
		scanned++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	if scanned == 0 {
		return nil, ErrEmptyCorpus
	}

	winners := best.sorted()
	results := make([]Result, len(winners))
	for i, c := range winners {
		results[i] = Result{ChunkID: c.id, ChunkText: c.text, Score: c.score}
	}
	return results, nil
}

// Count returns the number of rows in corpus_rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM corpus_rows").Scan(&count)
	return count, err
}

// ExportAll returns all rows in insertion order.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]CorpusRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, chunk_text, embedding FROM corpus_rows ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	var out []CorpusRow
	for rows.Next() {
		var r CorpusRow
		var blob []byte
		if err := rows.Scan(&r.ChunkID, &r.ChunkText, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if r.Embedding, err = decodeFloat64sInto(nil, blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ChunkID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// encodeFloat64s serializes a float64 slice to little-endian bytes.
func encodeFloat64s(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// decodeFloat64sInto decodes little-endian bytes into buf, reusing its
// capacity so the scan does not allocate per row. A length that is not a
// multiple of 8 indicates corruption.
func decodeFloat64sInto(buf []float64, b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 8", len(b))
	}
	n := len(b) / 8
	if cap(buf) < n {
		buf = make([]float64, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return buf, nil
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fact is a graduated knowledge-cache entry: a long-lived claim with a
// confidence score that grows with access and decays with staleness.
type Fact struct {
	ID             string
	Content        string
	Embedding      []float32
	Source         string
	Category       string
	Verifier       string
	VerifiedAt     time.Time
	Confidence     float64
	LastAccessedAt time.Time
	AccessCount    int
	Metadata       map[string]any
	CreatedAt      time.Time
}

// NeedsReverify reports whether a fact's confidence has dropped low enough
// that it must be re-verified before being surfaced as authoritative.
func (f *Fact) NeedsReverify() bool {
	return f.Confidence < 0.5
}

// InsertFact assigns an ID (if absent) and inserts f, returning the final ID.
func (db *DB) InsertFact(f *Fact) (string, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.VerifiedAt.IsZero() {
		f.VerifiedAt = now
	}
	if f.LastAccessedAt.IsZero() {
		f.LastAccessedAt = now
	}

	embBlob, err := encodeEmbedding(f.Embedding)
	if err != nil {
		return "", err
	}
	metaJSON, err := json.Marshal(nonNilMap(f.Metadata))
	if err != nil {
		return "", fmt.Errorf("store: marshaling fact metadata: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO knowledge_cache (id, fact, embedding, source, category, verifier, verified_at, confidence, last_accessed_at, access_count, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Content, embBlob, f.Source, f.Category, f.Verifier,
		f.VerifiedAt.Format(time.RFC3339Nano), f.Confidence, f.LastAccessedAt.Format(time.RFC3339Nano),
		f.AccessCount, string(metaJSON), f.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("store: inserting fact: %w", err)
	}
	return f.ID, nil
}

// GetFact fetches a fact by ID.
func (db *DB) GetFact(id string) (*Fact, error) {
	row := db.conn.QueryRow(`
		SELECT id, fact, embedding, source, category, verifier, verified_at, confidence, last_accessed_at, access_count, metadata, created_at
		FROM knowledge_cache WHERE id = ?`, id)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// ListFacts returns every fact, ordered by confidence descending.
func (db *DB) ListFacts() ([]*Fact, error) {
	rows, err := db.conn.Query(`
		SELECT id, fact, embedding, source, category, verifier, verified_at, confidence, last_accessed_at, access_count, metadata, created_at
		FROM knowledge_cache ORDER BY confidence DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: listing facts: %w", err)
	}
	defer rows.Close()

	var out []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning fact row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// TouchFact bumps access_count and last_accessed_at, called whenever the fact
// is surfaced by retrieval — the graduation state machine reads these fields.
func (db *DB) TouchFact(id string) error {
	_, err := db.conn.Exec(`UPDATE knowledge_cache SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// UpdateFactConfidence overwrites a fact's confidence score, used by the
// graduation and decay passes.
func (db *DB) UpdateFactConfidence(id string, confidence float64) error {
	_, err := db.conn.Exec(`UPDATE knowledge_cache SET confidence = ? WHERE id = ?`, confidence, id)
	return err
}

// UpdateFactMetadata overwrites a fact's metadata blob, used by graduation to
// set needs_reverify without touching any other column.
func (db *DB) UpdateFactMetadata(id string, metadata map[string]any) error {
	metaJSON, err := json.Marshal(nonNilMap(metadata))
	if err != nil {
		return fmt.Errorf("store: marshaling fact metadata: %w", err)
	}
	_, err = db.conn.Exec(`UPDATE knowledge_cache SET metadata = ? WHERE id = ?`, string(metaJSON), id)
	return err
}

// DeleteFact removes a fact row.
func (db *DB) DeleteFact(id string) error {
	_, err := db.conn.Exec(`DELETE FROM knowledge_cache WHERE id = ?`, id)
	return err
}

func scanFact(row scannable) (*Fact, error) {
	var f Fact
	var embBlob []byte
	var metaJSON, verifiedAt, lastAccessedAt, createdAt string
	err := row.Scan(&f.ID, &f.Content, &embBlob, &f.Source, &f.Category, &f.Verifier,
		&verifiedAt, &f.Confidence, &lastAccessedAt, &f.AccessCount, &metaJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	f.Embedding, err = decodeEmbedding(embBlob)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &f.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshaling fact metadata: %w", err)
	}
	if f.VerifiedAt, err = time.Parse(time.RFC3339Nano, verifiedAt); err != nil {
		return nil, fmt.Errorf("store: parsing verified_at: %w", err)
	}
	if f.LastAccessedAt, err = time.Parse(time.RFC3339Nano, lastAccessedAt); err != nil {
		return nil, fmt.Errorf("store: parsing last_accessed_at: %w", err)
	}
	if f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("store: parsing created_at: %w", err)
	}
	return &f, nil
}

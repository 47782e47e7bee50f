package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier identifies which memory tier a record belongs to.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// Memory is a single memory-engine entry: a turn, chunk, or consolidated
// summary, with an optional embedding for similarity scoring.
type Memory struct {
	ID          string
	Content     string
	Embedding   []float32
	Tier        Tier
	Importance  float64
	Tags        []string
	SourceAgent string
	Metadata    map[string]any
	ChunkOf     string
	ChunkIndex  int
	AccessCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InsertMemory assigns an ID (if absent) and inserts m, returning the final ID.
func (db *DB) InsertMemory(m *Memory) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Tier == "" {
		m.Tier = TierShortTerm
	}

	embBlob, err := encodeEmbedding(m.Embedding)
	if err != nil {
		return "", err
	}
	tagsJSON, err := json.Marshal(nonNilStrings(m.Tags))
	if err != nil {
		return "", fmt.Errorf("store: marshaling tags: %w", err)
	}
	metaJSON, err := json.Marshal(nonNilMap(m.Metadata))
	if err != nil {
		return "", fmt.Errorf("store: marshaling metadata: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO memories (id, content, embedding, tier, importance, tags, source_agent, metadata, chunk_of, chunk_index, access_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Content, embBlob, string(m.Tier), m.Importance, string(tagsJSON), m.SourceAgent, string(metaJSON),
		m.ChunkOf, m.ChunkIndex, m.AccessCount, m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("store: inserting memory: %w", err)
	}
	return m.ID, nil
}

// GetMemory fetches a memory by ID, returning ErrNotFound if absent.
func (db *DB) GetMemory(id string) (*Memory, error) {
	row := db.conn.QueryRow(`
		SELECT id, content, embedding, tier, importance, tags, source_agent, metadata, chunk_of, chunk_index, access_count, created_at, updated_at
		FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListMemoriesByTier returns every memory in the given tier, most recent first.
func (db *DB) ListMemoriesByTier(tier Tier) ([]*Memory, error) {
	rows, err := db.conn.Query(`
		SELECT id, content, embedding, tier, importance, tags, source_agent, metadata, chunk_of, chunk_index, access_count, created_at, updated_at
		FROM memories WHERE tier = ? ORDER BY created_at DESC`, string(tier))
	if err != nil {
		return nil, fmt.Errorf("store: listing memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListAllMemories returns every memory record, used by retrieval/consolidation
// passes that need the full corpus in memory to score or cluster.
func (db *DB) ListAllMemories() ([]*Memory, error) {
	rows, err := db.conn.Query(`
		SELECT id, content, embedding, tier, importance, tags, source_agent, metadata, chunk_of, chunk_index, access_count, created_at, updated_at
		FROM memories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: listing all memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// TouchMemory increments access_count and bumps updated_at, called whenever a
// memory is surfaced by retrieval.
func (db *DB) TouchMemory(id string) error {
	_, err := db.conn.Exec(`UPDATE memories SET access_count = access_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// PromoteMemory moves a memory into the long_term tier.
func (db *DB) PromoteMemory(id string) error {
	_, err := db.conn.Exec(`UPDATE memories SET tier = ?, updated_at = ? WHERE id = ?`,
		string(TierLongTerm), time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// UpdateMemoryImportance overwrites the importance score of a memory.
func (db *DB) UpdateMemoryImportance(id string, importance float64) error {
	_, err := db.conn.Exec(`UPDATE memories SET importance = ?, updated_at = ? WHERE id = ?`,
		importance, time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// DeleteMemory removes a memory row. Callers that consolidate memories must
// insert the memory_links audit trail before deleting the superseded rows,
// since links are never cascade-deleted.
func (db *DB) DeleteMemory(id string) error {
	_, err := db.conn.Exec(`DELETE FROM memories WHERE id = ?`, id)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMemory(row scannable) (*Memory, error) {
	var m Memory
	var embBlob []byte
	var tagsJSON, metaJSON, createdAt, updatedAt string
	var tier string
	err := row.Scan(&m.ID, &m.Content, &embBlob, &tier, &m.Importance, &tagsJSON, &m.SourceAgent, &metaJSON,
		&m.ChunkOf, &m.ChunkIndex, &m.AccessCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.Tier = Tier(tier)
	m.Embedding, err = decodeEmbedding(embBlob)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return nil, fmt.Errorf("store: unmarshaling tags: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshaling metadata: %w", err)
	}
	m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: parsing created_at: %w", err)
	}
	m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: parsing updated_at: %w", err)
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning memory row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Package store persists filing chunks between report runs.
// Supports Hybrid Vault: DB (Primary) + File System (Fallback/Local).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"finpulse/pkg/core/rag"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCorrupt is returned when the backing file exists but cannot be parsed.
// Corruption must surface to the caller: silently treating a broken cache as
// empty would re-chunk filings and orphan previously issued citations.
var ErrCorrupt = errors.New("chunk store file is corrupt")

// ChunkStore is a durable mapping from company identifier to its chunk set.
// When a pgxpool is supplied the database is the primary backend; otherwise
// chunks live in a single JSON file with schema {companyId -> [chunks]}.
//
// Writes for a given company are serialized; the store assumes a single
// writer per company at a time.
type ChunkStore struct {
	pool *pgxpool.Pool
	path string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewChunkStore creates a chunk store. If pool is nil, path names the JSON
// backing file (defaults to .cache/finpulse/chunks.json when empty).
func NewChunkStore(pool *pgxpool.Pool, path string) *ChunkStore {
	if pool == nil && path == "" {
		path = filepath.Join(".cache", "finpulse", "chunks.json")
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fmt.Printf("[WARNING] Check chunk store dir: %v\n", err)
		}
	}
	return &ChunkStore{pool: pool, path: path, locks: make(map[string]*sync.Mutex)}
}

// companyLock returns the write lock for a company, creating it on first use.
func (s *ChunkStore) companyLock(companyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[companyID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[companyID] = l
	}
	return l
}

// Load returns all persisted chunks for a company, empty if none.
func (s *ChunkStore) Load(ctx context.Context, companyID string) ([]rag.Chunk, error) {
	if s.pool != nil {
		return s.loadFromDB(ctx, companyID)
	}

	data, err := s.readFile()
	if err != nil {
		return nil, err
	}
	chunks := data[companyID]
	if chunks == nil {
		chunks = []rag.Chunk{}
	}
	return chunks, nil
}

// Save overwrites all chunks for a company. The file write goes through a
// temp file and rename so a failure mid-write never leaves an unreadable
// store behind.
func (s *ChunkStore) Save(ctx context.Context, companyID string, chunks []rag.Chunk) error {
	lock := s.companyLock(companyID)
	lock.Lock()
	defer lock.Unlock()

	if s.pool != nil {
		return s.saveToDB(ctx, companyID, chunks)
	}

	data, err := s.readFile()
	if err != nil {
		return err
	}
	data[companyID] = chunks

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunk store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0644); err != nil {
		return fmt.Errorf("failed to write chunk store temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace chunk store file: %w", err)
	}
	return nil
}

// Has reports whether any chunk for the given filing is already persisted
// under the company. The orchestrator uses this to skip re-chunking.
func (s *ChunkStore) Has(ctx context.Context, companyID, filingID string) (bool, error) {
	if s.pool != nil {
		query := `SELECT 1 FROM filing_chunks WHERE company_id = $1 AND filing_id = $2 LIMIT 1`
		var one int
		err := s.pool.QueryRow(ctx, query, companyID, filingID).Scan(&one)
		return hasRowResult(err)
	}

	data, err := s.readFile()
	if err != nil {
		return false, err
	}
	for _, c := range data[companyID] {
		if c.FilingID == filingID {
			return true, nil
		}
	}
	return false, nil
}

// hasRowResult interprets a QueryRow scan outcome for existence checks.
// Only a definite no-rows answer means "absent"; connection or schema
// failures must surface so a broken store never triggers re-chunking.
func hasRowResult(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check chunk existence: %w", err)
}

// readFile loads the whole backing file. A missing file is an empty store; a
// present but unparseable file is ErrCorrupt.
func (s *ChunkStore) readFile() (map[string][]rag.Chunk, error) {
	bytes, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string][]rag.Chunk), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk store: %w", err)
	}

	var data map[string][]rag.Chunk
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if data == nil {
		data = make(map[string][]rag.Chunk)
	}
	return data, nil
}

// Database backend

func (s *ChunkStore) loadFromDB(ctx context.Context, companyID string) ([]rag.Chunk, error) {
	query := `
		SELECT chunk_id, content, filing_id, source_url, sequence_index
		FROM filing_chunks
		WHERE company_id = $1
		ORDER BY filing_id, sequence_index
	`
	rows, err := s.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	chunks := []rag.Chunk{}
	for rows.Next() {
		var c rag.Chunk
		if err := rows.Scan(&c.ID, &c.Text, &c.FilingID, &c.SourceURL, &c.SequenceIndex); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *ChunkStore) saveToDB(ctx context.Context, companyID string, chunks []rag.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM filing_chunks WHERE company_id = $1`, companyID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	insert := `
		INSERT INTO filing_chunks (company_id, chunk_id, content, filing_id, source_url, sequence_index)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, c := range chunks {
		if _, err := tx.Exec(ctx, insert, companyID, c.ID, c.Text, c.FilingID, c.SourceURL, c.SequenceIndex); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

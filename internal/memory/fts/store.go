// Package fts provides a file-indexed, full-text-searchable memory store
// consumed by the agent loop's context composition and the memory-search
// tool. It is a lexical sibling to the vector-based internal/memory
// package: chunked markdown sources, BM25 ranking via SQLite FTS5 when
// available, LIKE-based fallback otherwise.
package fts

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	// MinChunkSize is the minimum byte length for an indexed chunk; shorter
	// paragraphs are dropped.
	MinChunkSize = 12
	// MaxChunkSize is the maximum byte length for an indexed chunk; longer
	// paragraphs are truncated at a UTF-8 boundary.
	MaxChunkSize = 1200
	// MaxFTSTerms bounds the number of unique query terms sent to FTS MATCH.
	MaxFTSTerms = 16
)

var (
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
	wordRe      = regexp.MustCompile(`[A-Za-z0-9_]+`)
)

// Hit is a single search result: the source it came from and the matched
// chunk content.
type Hit struct {
	SourceKey string
	Content   string
}

// Store is a mutex-guarded SQLite-backed full-text memory index.
//
// One writer at a time: readers and writers alike serialize through mu
// on a single connection. WAL journaling lets concurrent external
// readers (e.g. sqlite3 CLI inspection) proceed without blocking.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	hasFTS bool
	logger *slog.Logger
}

// Open creates or opens the FTS-backed memory database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create memory db directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=3000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure memory db pragmas: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize memory db schema: %w", err)
	}
	return s, nil
}

// Clone opens a fresh connection against the same database file, so a
// blocking-pool task can query without contending on this handle's mutex.
func (s *Store) Clone() (*Store, error) {
	return Open(s.path, s.logger)
}

func (s *Store) ensureSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS memory_sources (
		source_key TEXT PRIMARY KEY,
		mtime_ns   INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS memory_entries (
		id           INTEGER PRIMARY KEY,
		source_key   TEXT NOT NULL,
		content      TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		UNIQUE(source_key, content_hash)
	)`); err != nil {
		return err
	}

	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
		content, source_key, content='memory_entries', content_rowid='id'
	)`)
	if err != nil {
		s.hasFTS = false
		s.logger.Debug("fts5 unavailable, falling back to LIKE search", "error", err)
		return nil
	}

	for _, trig := range []string{
		`CREATE TRIGGER IF NOT EXISTS mem_ai AFTER INSERT ON memory_entries BEGIN
			INSERT INTO memory_fts(rowid, content, source_key) VALUES (new.id, new.content, new.source_key);
		END`,
		`CREATE TRIGGER IF NOT EXISTS mem_ad AFTER DELETE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, content, source_key) VALUES ('delete', old.id, old.content, old.source_key);
		END`,
		`CREATE TRIGGER IF NOT EXISTS mem_au AFTER UPDATE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, content, source_key) VALUES ('delete', old.id, old.content, old.source_key);
			INSERT INTO memory_fts(rowid, content, source_key) VALUES (new.id, new.content, new.source_key);
		END`,
	} {
		if _, err := s.db.Exec(trig); err != nil {
			return fmt.Errorf("create fts sync trigger: %w", err)
		}
	}
	s.hasFTS = true
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func fileMtimeNS(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// IndexFile (re)indexes the file at path under source_key. A no-op when
// the file's mtime is unchanged since the last index; otherwise all prior
// entries for source_key are replaced.
func (s *Store) IndexFile(sourceKey, path string) error {
	mtimeNS := fileMtimeNS(path)
	now := time.Now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing int64
	err := s.db.QueryRow(`SELECT mtime_ns FROM memory_sources WHERE source_key = ?`, sourceKey).Scan(&existing)
	if err == nil && existing == mtimeNS {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM memory_entries WHERE source_key = ?`, sourceKey); err != nil {
		return fmt.Errorf("clear stale entries: %w", err)
	}

	var text string
	if data, readErr := os.ReadFile(path); readErr == nil {
		text = string(data)
	}

	for _, chunk := range SplitIntoChunks(text) {
		hash := hashText(chunk)
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO memory_entries (source_key, content, content_hash, created_at) VALUES (?, ?, ?, ?)`,
			sourceKey, chunk, hash, now,
		); err != nil {
			return fmt.Errorf("insert memory chunk: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO memory_sources (source_key, mtime_ns, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(source_key) DO UPDATE SET mtime_ns = excluded.mtime_ns, updated_at = excluded.updated_at`,
		sourceKey, mtimeNS, now,
	); err != nil {
		return fmt.Errorf("upsert source record: %w", err)
	}

	return tx.Commit()
}

// IndexDirectory indexes every *.md child of dir, keyed by file name.
func (s *Store) IndexDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read memory directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".md") {
			continue
		}
		if err := s.IndexFile(entry.Name(), filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("index %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Search tokenizes query into up to MaxFTSTerms unique lowercase terms,
// over-fetches limit+len(exclude) rows ranked by BM25 ascending (or a
// LIKE scan when FTS5 is unavailable), filters excluded sources, and
// returns at most limit hits.
func (s *Store) Search(query string, limit int, exclude map[string]bool) ([]Hit, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}
	fetch := limit + len(exclude)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasFTS {
		hits, err := s.searchFTS(ftsQuery, fetch, limit, exclude)
		if err == nil {
			return hits, nil
		}
		s.logger.Warn("fts search failed, falling back to LIKE", "error", err)
	}
	return s.searchLike(query, fetch, limit, exclude)
}

func (s *Store) searchFTS(ftsQuery string, fetch, limit int, exclude map[string]bool) ([]Hit, error) {
	rows, err := s.db.Query(`
		SELECT me.source_key, me.content
		FROM memory_fts
		JOIN memory_entries me ON memory_fts.rowid = me.id
		WHERE memory_fts MATCH ?
		ORDER BY bm25(memory_fts)
		LIMIT ?`, ftsQuery, fetch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHits(rows, limit, exclude)
}

func (s *Store) searchLike(query string, fetch, limit int, exclude map[string]bool) ([]Hit, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	like := "%" + trimmed + "%"

	rows, err := s.db.Query(
		`SELECT source_key, content FROM memory_entries WHERE content LIKE ? LIMIT ?`, like, fetch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHits(rows, limit, exclude)
}

func collectHits(rows *sql.Rows, limit int, exclude map[string]bool) ([]Hit, error) {
	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.SourceKey, &h.Content); err != nil {
			return nil, err
		}
		if exclude[h.SourceKey] {
			continue
		}
		hits = append(hits, h)
		if len(hits) >= limit {
			break
		}
	}
	return hits, rows.Err()
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SplitIntoChunks splits text on blank-line boundaries, dropping chunks
// shorter than MinChunkSize and truncating chunks longer than
// MaxChunkSize at a UTF-8 character boundary.
func SplitIntoChunks(text string) []string {
	parts := blankLineRe.Split(strings.TrimSpace(text), -1)
	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.TrimSpace(part)
		if len(p) < MinChunkSize {
			continue
		}
		if len(p) > MaxChunkSize {
			end := MaxChunkSize
			for end > 0 && !isUTF8Boundary(p, end) {
				end--
			}
			p = p[:end]
		}
		chunks = append(chunks, p)
	}
	return chunks
}

func isUTF8Boundary(s string, idx int) bool {
	if idx <= 0 || idx >= len(s) {
		return true
	}
	return s[idx]&0xC0 != 0x80
}

func buildFTSQuery(text string) string {
	terms := wordRe.FindAllString(text, -1)
	if len(terms) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(terms))
	unique := make([]string, 0, MaxFTSTerms)
	for _, term := range terms {
		low := strings.ToLower(term)
		if seen[low] {
			continue
		}
		seen[low] = true
		unique = append(unique, low)
		if len(unique) >= MaxFTSTerms {
			break
		}
	}
	return strings.Join(unique, " OR ")
}

// EntryCount returns the number of indexed chunks, for diagnostics/tests.
func (s *Store) EntryCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memory_entries`).Scan(&n)
	return n, err
}

// Package workspace manages the agent's category-organized workspace
// manifest: a file index that tools register into and the loop queries
// for context hints, backed by a SQL table rather than the filesystem
// alone (so search, tagging, and expiry don't require a directory walk).
package workspace

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is a workspace file category directory.
type Category string

const (
	CategoryCode      Category = "code"
	CategoryDocuments Category = "documents"
	CategoryData      Category = "data"
	CategoryImages    Category = "images"
	CategoryDownloads Category = "downloads"
	CategoryTemp      Category = "temp"
)

var allCategories = []Category{
	CategoryCode, CategoryDocuments, CategoryData, CategoryImages, CategoryDownloads, CategoryTemp,
}

// reservedDirs are top-level directories owned by other subsystems and
// never managed by the workspace manifest.
var reservedDirs = map[string]bool{
	"memory": true, "knowledge": true, "skills": true, "sessions": true,
}

var extensionCategory = map[string]Category{
	"py": CategoryCode, "rs": CategoryCode, "js": CategoryCode, "ts": CategoryCode,
	"tsx": CategoryCode, "jsx": CategoryCode, "sh": CategoryCode, "bash": CategoryCode,
	"rb": CategoryCode, "go": CategoryCode, "java": CategoryCode, "c": CategoryCode,
	"cpp": CategoryCode, "h": CategoryCode, "hpp": CategoryCode, "html": CategoryCode,
	"css": CategoryCode, "sql": CategoryCode, "lua": CategoryCode, "php": CategoryCode,
	"swift": CategoryCode, "kt": CategoryCode, "scala": CategoryCode, "r": CategoryCode,
	"pl": CategoryCode, "zig": CategoryCode, "nim": CategoryCode, "ex": CategoryCode,
	"exs": CategoryCode, "erl": CategoryCode,

	"md": CategoryDocuments, "txt": CategoryDocuments, "doc": CategoryDocuments,
	"docx": CategoryDocuments, "rtf": CategoryDocuments, "org": CategoryDocuments,
	"rst": CategoryDocuments, "adoc": CategoryDocuments, "tex": CategoryDocuments,
	"log": CategoryDocuments,

	"csv": CategoryData, "json": CategoryData, "yaml": CategoryData, "yml": CategoryData,
	"xml": CategoryData, "toml": CategoryData, "parquet": CategoryData, "tsv": CategoryData,
	"ndjson": CategoryData, "jsonl": CategoryData, "sqlite": CategoryData,
	"sqlite3": CategoryData, "db": CategoryData,

	"png": CategoryImages, "jpg": CategoryImages, "jpeg": CategoryImages, "gif": CategoryImages,
	"svg": CategoryImages, "webp": CategoryImages, "bmp": CategoryImages, "ico": CategoryImages,
	"tiff": CategoryImages, "tif": CategoryImages, "avif": CategoryImages, "heic": CategoryImages,

	"pdf": CategoryDownloads, "zip": CategoryDownloads, "tar": CategoryDownloads,
	"gz": CategoryDownloads, "bz2": CategoryDownloads, "xz": CategoryDownloads,
	"7z": CategoryDownloads, "rar": CategoryDownloads, "epub": CategoryDownloads,
	"mobi": CategoryDownloads, "whl": CategoryDownloads, "deb": CategoryDownloads,
	"rpm": CategoryDownloads, "dmg": CategoryDownloads, "iso": CategoryDownloads,
	"apk": CategoryDownloads,
}

// InferCategory derives a category from a file's extension, defaulting to
// CategoryTemp for unknown or missing extensions.
func InferCategory(path string) Category {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if cat, ok := extensionCategory[ext]; ok {
		return cat
	}
	return CategoryTemp
}

// ValidCategory reports whether s names one of the six managed categories.
func ValidCategory(s string) bool {
	for _, c := range allCategories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// File is one row of the workspace manifest.
type File struct {
	ID           string
	Path         string // relative to workspace root
	Category     Category
	OriginalName string
	SizeBytes    int64
	SourceTool   string
	SessionKey   string
	Tags         []string // parsed from CSV
	CreatedAt    time.Time
	AccessedAt   *time.Time
}

func (f *File) tagsCSV() string { return strings.Join(f.Tags, ",") }

func parseTags(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Manager owns the workspace_files manifest table and the root directory
// it indexes paths relative to.
type Manager struct {
	db   *sql.DB
	root string
}

// New wraps an already-open *sql.DB (any driver offering standard SQL;
// the memory FTS store and this manager may share a database handle)
// rooted at root.
func New(db *sql.DB, root string) (*Manager, error) {
	m := &Manager{db: db, root: root}
	if err := m.ensureSchema(); err != nil {
		return nil, fmt.Errorf("initialize workspace schema: %w", err)
	}
	return m, nil
}

func (m *Manager) ensureSchema() error {
	_, err := m.db.Exec(`CREATE TABLE IF NOT EXISTS workspace_files (
		id            TEXT PRIMARY KEY,
		path          TEXT NOT NULL UNIQUE,
		category      TEXT NOT NULL,
		original_name TEXT,
		size_bytes    INTEGER NOT NULL,
		source_tool   TEXT,
		session_key   TEXT,
		tags          TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		accessed_at   TEXT
	)`)
	return err
}

// Root returns the workspace root directory.
func (m *Manager) Root() string { return m.root }

// ResolvePath computes <root>/<category>/<YYYY-MM-DD>/<basename(filename)>.
// Path-traversal components in filename are stripped to the final
// basename; categoryHint overrides the extension-inferred category.
func (m *Manager) ResolvePath(filename string, categoryHint *Category) string {
	base := filepath.Base(filename)
	cat := InferCategory(filename)
	if categoryHint != nil {
		cat = *categoryHint
	}
	date := time.Now().UTC().Format("2006-01-02")
	return filepath.Join(m.root, string(cat), date, base)
}

// IsManagedPath reports whether path is inside a managed category
// directory under root: not a reserved directory, not a root-level file,
// and not escaping root via `..`.
func (m *Manager) IsManagedPath(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." {
		return false
	}
	comps := strings.Split(filepath.ToSlash(rel), "/")
	for _, c := range comps {
		if c == ".." {
			return false
		}
	}
	if len(comps) < 2 {
		return false
	}
	first := comps[0]
	if reservedDirs[first] {
		return false
	}
	return ValidCategory(first)
}

// RegisterFile upserts a manifest row for path. On update it preserves
// id, tags, and accessed_at — only category (re-derived), original name,
// size, source tool, and session key are refreshed. Returns nil (no-op,
// not an error) for unmanaged paths.
func (m *Manager) RegisterFile(path, originalName, sourceTool, sessionKey string, sizeBytes int64) (*File, error) {
	if !m.IsManagedPath(path) {
		return nil, nil
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return nil, fmt.Errorf("relativize path: %w", err)
	}
	rel = filepath.ToSlash(rel)
	category := Category(strings.SplitN(rel, "/", 2)[0])

	existing, err := m.getByPath(rel)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing != nil {
		_, err := m.db.Exec(`UPDATE workspace_files
			SET category = ?, original_name = ?, size_bytes = ?, source_tool = ?, session_key = ?
			WHERE path = ?`,
			string(category), originalName, sizeBytes, sourceTool, sessionKey, rel)
		if err != nil {
			return nil, fmt.Errorf("update workspace file: %w", err)
		}
		existing.Category = category
		existing.OriginalName = originalName
		existing.SizeBytes = sizeBytes
		existing.SourceTool = sourceTool
		existing.SessionKey = sessionKey
		return existing, nil
	}

	f := &File{
		ID: uuid.NewString(), Path: rel, Category: category, OriginalName: originalName,
		SizeBytes: sizeBytes, SourceTool: sourceTool, SessionKey: sessionKey, CreatedAt: now,
	}
	_, err = m.db.Exec(`INSERT INTO workspace_files
		(id, path, category, original_name, size_bytes, source_tool, session_key, tags, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, NULL)`,
		f.ID, f.Path, string(f.Category), f.OriginalName, f.SizeBytes, f.SourceTool, f.SessionKey, f.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert workspace file: %w", err)
	}
	return f, nil
}

// Touch updates a file's accessed_at to now.
func (m *Manager) Touch(path string) error {
	rel := m.relPath(path)
	_, err := m.db.Exec(`UPDATE workspace_files SET accessed_at = ? WHERE path = ?`,
		time.Now().UTC().Format(time.RFC3339), rel)
	return err
}

// SetTags replaces the stored CSV tag list for path.
func (m *Manager) SetTags(path, csv string) error {
	rel := m.relPath(path)
	_, err := m.db.Exec(`UPDATE workspace_files SET tags = ? WHERE path = ?`, csv, rel)
	return err
}

// Move relocates a manifest row from oldPath to newPath, optionally
// reassigning its category.
func (m *Manager) Move(oldPath, newPath string, newCategory *Category) error {
	oldRel := m.relPath(oldPath)
	newRel := m.relPath(newPath)
	if newCategory != nil {
		_, err := m.db.Exec(`UPDATE workspace_files SET path = ?, category = ? WHERE path = ?`,
			newRel, string(*newCategory), oldRel)
		return err
	}
	_, err := m.db.Exec(`UPDATE workspace_files SET path = ? WHERE path = ?`, newRel, oldRel)
	return err
}

// Unregister removes path from the manifest (the underlying file is
// untouched; this only drops the manifest row).
func (m *Manager) Unregister(path string) error {
	rel := m.relPath(path)
	_, err := m.db.Exec(`DELETE FROM workspace_files WHERE path = ?`, rel)
	return err
}

// ListOptions filters List.
type ListOptions struct {
	Category *Category
	Date     *time.Time // matches the YYYY-MM-DD path component
	Tags     []string   // whole-token match against the stored CSV
}

// List returns files matching the given filters, newest first.
func (m *Manager) List(opts ListOptions) ([]*File, error) {
	query := `SELECT id, path, category, original_name, size_bytes, source_tool, session_key, tags, created_at, accessed_at FROM workspace_files WHERE 1=1`
	var args []any
	if opts.Category != nil {
		query += ` AND category = ?`
		args = append(args, string(*opts.Category))
	}
	if opts.Date != nil {
		query += ` AND path LIKE ?`
		args = append(args, "%/"+opts.Date.Format("2006-01-02")+"/%")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}
	if len(opts.Tags) == 0 {
		return files, nil
	}
	return filterByTags(files, opts.Tags), nil
}

// filterByTags keeps files that carry every tag in want, matching whole
// tokens only — a substring match against the CSV blob would be a bug
// (e.g. "port" must not match a file tagged only "important").
func filterByTags(files []*File, want []string) []*File {
	out := make([]*File, 0, len(files))
	for _, f := range files {
		have := make(map[string]bool, len(f.Tags))
		for _, t := range f.Tags {
			have[t] = true
		}
		ok := true
		for _, w := range want {
			if !have[w] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, f)
		}
	}
	return out
}

// Search returns files whose path or original name contains substr
// (case-insensitive).
func (m *Manager) Search(substr string) ([]*File, error) {
	rows, err := m.db.Query(`SELECT id, path, category, original_name, size_bytes, source_tool, session_key, tags, created_at, accessed_at
		FROM workspace_files WHERE path LIKE ? OR original_name LIKE ? ORDER BY created_at DESC`,
		"%"+substr+"%", "%"+substr+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiles(rows)
}

// ListExpired returns rows in category older than now-ttlDays.
func (m *Manager) ListExpired(category Category, ttlDays int) ([]*File, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -ttlDays).Format(time.RFC3339)
	rows, err := m.db.Query(`SELECT id, path, category, original_name, size_bytes, source_tool, session_key, tags, created_at, accessed_at
		FROM workspace_files WHERE category = ? AND created_at < ? ORDER BY created_at ASC`,
		string(category), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (m *Manager) relPath(path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(m.root, path); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

func (m *Manager) getByPath(rel string) (*File, error) {
	row := m.db.QueryRow(`SELECT id, path, category, original_name, size_bytes, source_tool, session_key, tags, created_at, accessed_at
		FROM workspace_files WHERE path = ?`, rel)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	var f File
	var category, createdAt string
	var accessedAt, tags, originalName, sourceTool, sessionKey sql.NullString
	if err := row.Scan(&f.ID, &f.Path, &category, &originalName, &f.SizeBytes, &sourceTool, &sessionKey, &tags, &createdAt, &accessedAt); err != nil {
		return nil, err
	}
	f.Category = Category(category)
	f.OriginalName = originalName.String
	f.SourceTool = sourceTool.String
	f.SessionKey = sessionKey.String
	f.Tags = parseTags(tags.String)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		f.CreatedAt = t
	}
	if accessedAt.Valid {
		if t, err := time.Parse(time.RFC3339, accessedAt.String); err == nil {
			f.AccessedAt = &t
		}
	}
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]*File, error) {
	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, rows.Err()
}

package translation_memory

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/morler/repo-translate/translation_memory/contracts"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const table = "translation_memory"

// SQLiteStore keeps translations in a single SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	sq    sq.StatementBuilderType
	path  string
	scope string
	perf  *performance
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations.
func NewSQLiteStore(dbPath, scope string) (contracts.IStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{
		db:    db,
		sq:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
		path:  dbPath,
		scope: scope,
		perf:  newPerformance(),
	}, nil
}

func openDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("make db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA cache_size = -16000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        applied_at TEXT NOT NULL
    )`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		var n int
		err := db.QueryRow(`SELECT 1 FROM schema_migrations WHERE name = ?`, name).Scan(&n)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, targetLang, source string) (string, bool, error) {
	q := s.sq.Select("translation").
		From(table).
		Where(sq.Eq{
			"scope":       s.scope,
			"tgt_lang":    targetLang,
			"source_text": source,
		}).
		Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", false, err
	}
	var translation string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&translation); err != nil {
		s.perf.recordMiss()
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query translation memory: %w", err)
	}
	s.perf.recordHit()
	return translation, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, targetLang, source, translation string) error {
	q := s.sq.Insert(table).
		Columns("scope", "tgt_lang", "source_text", "translation", "created_at").
		Values(s.scope, targetLang, source, translation, time.Now().UTC().Format(time.RFC3339)).
		Suffix("ON CONFLICT(scope, tgt_lang, source_text) DO UPDATE SET translation=excluded.translation, created_at=excluded.created_at")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("store translation: %w", err)
	}
	s.perf.recordWrite()
	return nil
}

// Clear deletes every entry of every scope.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	sqlStr, args, err := s.sq.Delete(table).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("clear translation memory: %w", err)
	}
	s.perf.reset()
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	sqlStr, args, err := s.sq.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return nil, err
	}
	var entries int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&entries); err != nil {
		return nil, fmt.Errorf("count translation memory: %w", err)
	}

	sqlStr, args, err = s.sq.Select("COUNT(*)").From(table).Where(sq.Eq{"scope": s.scope}).ToSql()
	if err != nil {
		return nil, err
	}
	var scoped int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&scoped); err != nil {
		return nil, fmt.Errorf("count translation memory: %w", err)
	}

	stats := map[string]interface{}{
		"cache_enabled": true,
		"backend":       "sqlite",
		"cache_path":    s.path,
		"cache_entries": entries,
		"scope_entries": scoped,
	}
	if info, err := os.Stat(s.path); err == nil {
		stats["total_size"] = info.Size()
	}
	s.perf.snapshot(stats)
	return stats, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteMetadataStore is the default MetadataStore, backed by
// modernc.org/sqlite in WAL mode.
type SQLiteMetadataStore struct {
	db *sql.DB
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (creating if necessary) a SQLite database at
// dbPath. An empty path or ":memory:" opens an in-memory database.
func NewSQLiteMetadataStore(dbPath string) (*SQLiteMetadataStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enabling WAL mode: %w", err)
	}
	return &SQLiteMetadataStore{db: db}, nil
}

// InitSchema creates the tasks table if absent, then migrates in any
// columns added by later schema versions — mirroring the original
// implementation's PRAGMA table_info + ALTER TABLE ADD COLUMN approach
// rather than a full migration framework.
func (s *SQLiteMetadataStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tasks (
		cache_key TEXT PRIMARY KEY,
		func_name TEXT NOT NULL,
		input_seed TEXT NOT NULL,
		result_type TEXT NOT NULL,
		result_value BLOB NOT NULL,
		content_type TEXT,
		version TEXT,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("store: creating tasks table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at)`); err != nil {
		return fmt.Errorf("store: creating updated_at index: %w", err)
	}

	existing, err := s.columnNames(ctx)
	if err != nil {
		return err
	}
	for _, col := range []string{"content_type", "version"} {
		if !existing[col] {
			if _, err := s.db.ExecContext(ctx,
				fmt.Sprintf(`ALTER TABLE tasks ADD COLUMN %s TEXT`, col)); err != nil {
				return fmt.Errorf("store: migrating column %s: %w", col, err)
			}
		}
	}
	return nil
}

func (s *SQLiteMetadataStore) columnNames(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(tasks)`)
	if err != nil {
		return nil, fmt.Errorf("store: reading table_info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("store: scanning table_info row: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (s *SQLiteMetadataStore) Get(ctx context.Context, cacheKey string) (Record, bool, error) {
	var rec Record
	var resultType, contentType, version sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, func_name, input_seed, result_type, result_value, content_type, version, updated_at
		 FROM tasks WHERE cache_key = ?`, cacheKey,
	).Scan(&rec.CacheKey, &rec.FuncName, &rec.InputSeed, &resultType, &rec.Value, &contentType, &version, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("store: querying cache_key %s: %w", cacheKey, err)
	}
	rec.ResultType = ResultType(resultType.String)
	rec.ContentType = contentType.String
	rec.Version = version.String
	return rec, true, nil
}

func (s *SQLiteMetadataStore) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (cache_key, func_name, input_seed, result_type, result_value, content_type, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			func_name = excluded.func_name,
			input_seed = excluded.input_seed,
			result_type = excluded.result_type,
			result_value = excluded.result_value,
			content_type = excluded.content_type,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		rec.CacheKey, rec.FuncName, rec.InputSeed, string(rec.ResultType), rec.Value, rec.ContentType, rec.Version, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upserting cache_key %s: %w", rec.CacheKey, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) Delete(ctx context.Context, cacheKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE cache_key = ?`, cacheKey); err != nil {
		return fmt.Errorf("store: deleting cache_key %s: %w", cacheKey, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) History(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, func_name, input_seed, result_type, result_value, content_type, version, updated_at
		 FROM tasks ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: querying history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var resultType, contentType, version sql.NullString
		if err := rows.Scan(&rec.CacheKey, &rec.FuncName, &rec.InputSeed, &resultType, &rec.Value, &contentType, &version, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning history row: %w", err)
		}
		rec.ResultType = ResultType(resultType.String)
		rec.ContentType = contentType.String
		rec.Version = version.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

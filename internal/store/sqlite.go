// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides tool call audit persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == MemoryPath {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_calls (
			call_id     TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			subject     TEXT NOT NULL DEFAULT '',
			tool        TEXT NOT NULL,
			domain      TEXT NOT NULL DEFAULT '',
			tenant      TEXT NOT NULL DEFAULT '',
			outcome     TEXT NOT NULL,
			error_kind  TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			created_at  TEXT NOT NULL,

			CHECK (outcome IN ('ok', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations brings databases created by older releases up to the
// current schema. Each step is skipped when its column already exists.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('tool_calls') WHERE name = 'subject'`,
			apply:  `ALTER TABLE tool_calls ADD COLUMN subject TEXT NOT NULL DEFAULT ''`,
			column: "subject",
		},
	}

	for _, m := range migrations {
		var exists int
		if err := s.db.QueryRow(m.check).Scan(&exists); err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to tool_calls: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "tool_calls")
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// AppendToolCall appends a call to the audit log.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) AppendToolCall(ctx context.Context, c *ToolCall) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tool_calls (call_id, session_id, subject, tool, domain, tenant, outcome, error_kind, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.SessionID,
		c.Subject,
		c.Tool,
		c.Domain,
		c.Tenant,
		c.Outcome,
		c.ErrorKind,
		c.DurationMS,
		c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("appended tool call",
		"id", c.ID,
		"tool", c.Tool,
		"outcome", c.Outcome,
	)
	return nil
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const toolCallQuery = `
	SELECT call_id, session_id, subject, tool, domain, tenant, outcome, error_kind, duration_ms, created_at
	FROM tool_calls
	WHERE (? IS NULL OR created_at >= ?)
	  AND (? IS NULL OR session_id = ?)
	  AND (? IS NULL OR tool = ?)
	  AND (? IS NULL OR outcome = ?)
	ORDER BY created_at DESC
	LIMIT ?
`

// ListToolCalls returns tool calls matching the filter, newest first.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, f ToolCallFilter) ([]ToolCall, error) {
	var since *string
	if f.Since != nil {
		v := f.Since.UTC().Format(timeLayout)
		since = &v
	}

	rows, err := s.db.QueryContext(ctx, toolCallQuery,
		since, since,
		f.SessionID, f.SessionID,
		f.Tool, f.Tool,
		f.Outcome, f.Outcome,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	calls := []ToolCall{}
	for rows.Next() {
		var c ToolCall
		var created string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Subject, &c.Tool, &c.Domain, &c.Tenant, &c.Outcome, &c.ErrorKind, &c.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		c.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool calls: %w", err)
	}
	return calls, nil
}

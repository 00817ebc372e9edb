//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	path string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, path: path}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, &CorruptError{Path: path, Err: err}
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Path() string { return s.path }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) ([]task.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_name, action, schedule_type, days_of_week, timestamp, native_job_id, status, created_at
		 FROM tasks ORDER BY position`)
	if err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	defer rows.Close()

	out := []task.ScheduledTask{}
	for rows.Next() {
		var (
			t        task.ScheduledTask
			days     int64
			nativeID sql.NullString
			status   sql.NullString
		)
		if err := rows.Scan(&t.Name, &t.Action, &t.ScheduleType, &days, &t.Timestamp, &nativeID, &status, &t.CreatedAt); err != nil {
			return nil, &CorruptError{Path: s.path, Err: err}
		}
		t.DaysOfWeek = task.DaySet(days)
		t.NativeJobID = nativeID.String
		t.Status = task.Status(status.String)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	return out, nil
}

// ReplaceAll swaps the table contents inside one transaction.
func (s *sqliteStore) ReplaceAll(ctx context.Context, tasks []task.ScheduledTask) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return err
	}
	for i, t := range tasks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks(position, task_name, action, schedule_type, days_of_week, timestamp, native_job_id, status, created_at)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			i, t.Name, string(t.Action), string(t.ScheduleType), int64(t.DaysOfWeek), t.Timestamp,
			nullStr(t.NativeJobID), nullStr(string(t.Status)), t.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

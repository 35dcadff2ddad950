package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cronlens/internal/engine"
	logx "cronlens/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListSchedules(ctx context.Context) ([]engine.Schedule, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, expression, duration_minutes, is_active, color
		 FROM schedules ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Schedule
	for rows.Next() {
		var sc engine.Schedule
		var active int
		var color sql.NullString
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Expression, &sc.DurationMinutes, &active, &color); err != nil {
			return nil, err
		}
		sc.IsActive = active != 0
		sc.Color = color.String
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (engine.Schedule, error) {
	if s == nil || s.db == nil {
		return engine.Schedule{}, ErrDisabled
	}
	var sc engine.Schedule
	var active int
	var color sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, expression, duration_minutes, is_active, color
		 FROM schedules WHERE id = ?`, id,
	).Scan(&sc.ID, &sc.Name, &sc.Expression, &sc.DurationMinutes, &active, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Schedule{}, ErrNotFound
	}
	if err != nil {
		return engine.Schedule{}, err
	}
	sc.IsActive = active != 0
	sc.Color = color.String
	return sc, nil
}

func (s *sqliteStore) PutSchedule(ctx context.Context, sc engine.Schedule) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(sc.ID) == "" {
		return errors.New("schedule id is required")
	}
	active := 0
	if sc.IsActive {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, name, expression, duration_minutes, is_active, color)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name,
		   expression=excluded.expression,
		   duration_minutes=excluded.duration_minutes,
		   is_active=excluded.is_active,
		   color=excluded.color`,
		sc.ID, sc.Name, sc.Expression, sc.DurationMinutes, active, nullStr(sc.Color),
	)
	return err
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, action, schedule_id, detail, err, took_ms)
		 VALUES(?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Action, e.ScheduleID,
		nullStr(e.Detail), nullStr(e.Error), e.TookMS,
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout keeps sub-second ordering of events written within one cycle.
const timeLayout = "2006-01-02 15:04:05.000000"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS id_changes (
  id           INTEGER PRIMARY KEY,
  occurred_at  TEXT NOT NULL,
  cycle_id     TEXT,
  platform     TEXT NOT NULL,
  username     TEXT NOT NULL,
  change_type  TEXT NOT NULL CHECK (change_type IN ('first_seen','changed','invalid','valid_again')),
  old_user_id  TEXT,
  new_user_id  TEXT
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON id_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_user ON id_changes(username, occurred_at);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// LogChanges appends changes to the event log in a single transaction.
func (d *DB) LogChanges(ctx context.Context, changes []Change) (err error) {
	if len(changes) == 0 {
		return nil
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO id_changes(occurred_at, cycle_id, platform, username, change_type, old_user_id, new_user_id) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range changes {
		occurredAt := c.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now()
		}
		if _, err = stmt.ExecContext(ctx, occurredAt.UTC().Format(timeLayout), nullIfEmpty(c.CycleID), c.Platform, c.Username, c.ChangeType, nullIfEmpty(c.OldUserID), nullIfEmpty(c.NewUserID)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListOptions controls selection when listing changes.
type ListOptions struct {
	Username string
	Since    time.Time
	Limit    int
}

// ListRecentChanges returns the most recent changes, newest first.
func (d *DB) ListRecentChanges(ctx context.Context, opts ListOptions) ([]Change, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.Username != "" {
		where += " AND username = ?"
		args = append(args, opts.Username)
	}
	if !opts.Since.IsZero() {
		where += " AND occurred_at >= ?"
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	args = append(args, limit)

	q := "SELECT occurred_at, cycle_id, platform, username, change_type, old_user_id, new_user_id FROM id_changes " + where + " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAtStr string
		var cycleID, oldID, newID sql.NullString
		if err := rows.Scan(&occurredAtStr, &cycleID, &c.Platform, &c.Username, &c.ChangeType, &oldID, &newID); err != nil {
			return nil, err
		}
		if t, perr := time.ParseInLocation(timeLayout, occurredAtStr, time.UTC); perr == nil {
			c.OccurredAt = t
		}
		c.CycleID = cycleID.String
		c.OldUserID = oldID.String
		c.NewUserID = newID.String
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

type NameStats struct {
	Username   string
	FirstSeen  int
	Changed    int
	Invalid    int
	ValidAgain int
	LastChange time.Time
}

// GetStats aggregates the event log per username.
func (d *DB) GetStats(ctx context.Context) ([]NameStats, error) {
	query := `
		SELECT
			username,
			SUM(change_type = 'first_seen'),
			SUM(change_type = 'changed'),
			SUM(change_type = 'invalid'),
			SUM(change_type = 'valid_again'),
			MAX(occurred_at)
		FROM
			id_changes
		GROUP BY
			username
		ORDER BY
			username;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []NameStats
	for rows.Next() {
		var s NameStats
		var last string
		if err := rows.Scan(&s.Username, &s.FirstSeen, &s.Changed, &s.Invalid, &s.ValidAgain, &last); err != nil {
			return nil, err
		}
		if t, perr := time.ParseInLocation(timeLayout, last, time.UTC); perr == nil {
			s.LastChange = t
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Package journal records every descriptor version committed by a cell in
// a SQLite database, so operators can see when the topology changed, who
// changed it and what it looked like.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEmpty is returned by Latest when nothing was recorded yet.
var ErrEmpty = errors.New("journal is empty")

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	version_major INTEGER NOT NULL,
	caller        TEXT    NOT NULL,
	cellid        INTEGER NOT NULL,
	name          TEXT    NOT NULL,
	committed_at  INTEGER NOT NULL,
	descriptor    BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS commits_version ON commits(version_major);
`

// Entry is one committed descriptor version.
type Entry struct {
	Seq          int64
	VersionMajor int
	Caller       string
	CellID       int
	Name         string
	CommittedAt  time.Time
	Descriptor   []byte
}

// Journal is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends e and returns its sequence number. A zero CommittedAt is
// replaced by the current time.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CommittedAt.IsZero() {
		e.CommittedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO commits (version_major, caller, cellid, name, committed_at, descriptor) VALUES (?, ?, ?, ?, ?, ?)`,
		e.VersionMajor, e.Caller, e.CellID, e.Name, e.CommittedAt.UnixNano(), e.Descriptor)
	if err != nil {
		return 0, fmt.Errorf("record version %d: %w", e.VersionMajor, err)
	}
	return res.LastInsertId()
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT seq, version_major, caller, cellid, name, committed_at, descriptor FROM commits ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Latest returns the most recent entry.
func (j *Journal) Latest(ctx context.Context) (Entry, error) {
	entries, err := j.List(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrEmpty
	}
	return entries[0], nil
}

func scan(rows *sql.Rows) (Entry, error) {
	var (
		e  Entry
		ns int64
	)
	if err := rows.Scan(&e.Seq, &e.VersionMajor, &e.Caller, &e.CellID, &e.Name, &ns, &e.Descriptor); err != nil {
		return Entry{}, fmt.Errorf("scan commit: %w", err)
	}
	e.CommittedAt = time.Unix(0, ns)
	return e, nil
}

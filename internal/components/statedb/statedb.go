package statedb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// DB holds the small amount of state that outlives a single run: the fetch checkpoint,
// the remembered login id and the history of phase runs.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at `path`, ":memory:" is accepted.
func Open(path string) (DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0700)
		if err != nil {
			return DB{}, err
		}
	}
	sqlite, err := sql.Open("sqlite", path)
	if err != nil {
		return DB{}, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlite.SetMaxOpenConns(1)
	}
	_, err = sqlite.Exec(Schema)
	if err != nil {
		sqlite.Close()
		return DB{}, err
	}
	return DB{db: sqlite}, nil
}

func (d DB) Close() error {
	return d.db.Close()
}

// Get returns the value under `key`, ok is false when it was never set.
func (d DB) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	row := d.db.QueryRowContext(ctx, "select value from kv where key = ?", key)
	err = row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (d DB) Set(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(
		ctx,
		"insert into kv(key, value) values (?, ?) on conflict(key) do update set value = excluded.value",
		key, value,
	)
	return err
}

func (d DB) Delete(ctx context.Context, key string) error {
	_, err := d.db.ExecContext(ctx, "delete from kv where key = ?", key)
	return err
}

type Run struct {
	ID       string
	Phase    string
	Window   string
	Started  time.Time
	Finished time.Time
	OK       bool
	Error    string
}

// StartRun records the beginning of a phase and returns the id FinishRun expects.
func (d DB) StartRun(ctx context.Context, phase, window string, started time.Time) (string, error) {
	id := uuid.NewString()
	_, err := d.db.ExecContext(
		ctx,
		"insert into run(id, phase, run_window, started) values (?, ?, ?, ?)",
		id, phase, window, started.Unix(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (d DB) FinishRun(ctx context.Context, id string, finished time.Time, runErr error) error {
	ok := 1
	errText := ""
	if runErr != nil {
		ok = 0
		errText = runErr.Error()
	}
	_, err := d.db.ExecContext(
		ctx,
		"update run set finished = ?, ok = ?, error = ? where id = ?",
		finished.Unix(), ok, errText, id,
	)
	return err
}

// LastRuns returns up to `limit` runs, most recent first.
func (d DB) LastRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := d.db.QueryContext(
		ctx,
		"select id, phase, run_window, started, finished, ok, error from run order by started desc, rowid desc limit ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
			ok       sql.NullInt64
			errText  sql.NullString
		)
		err = rows.Scan(&run.ID, &run.Phase, &run.Window, &started, &finished, &ok, &errText)
		if err != nil {
			return nil, err
		}
		run.Started = time.Unix(started, 0)
		if finished.Valid {
			run.Finished = time.Unix(finished.Int64, 0)
		}
		run.OK = ok.Valid && ok.Int64 == 1
		run.Error = errText.String
		out = append(out, run)
	}
	return out, rows.Err()
}

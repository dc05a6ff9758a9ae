// Package engine opens embedded SQLite sessions according to the forwarded
// connection settings. It owns the driver specifics (DSN parameters, pragma
// application) so the actor and pool layers can stay engine-agnostic.
package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/timzifer/litepool/config"
)

const driverName = "sqlite3"

// OpenError reports that a store could not be opened or prepared.
type OpenError struct {
	Target string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open store %s: %v", e.Target, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// PragmaError reports that the store did not adopt a requested pragma.
type PragmaError struct {
	Name string
	Want string
	Got  string
}

func (e *PragmaError) Error() string {
	return fmt.Sprintf("pragma %s: expected %q, got %q", e.Name, e.Want, e.Got)
}

// DSN renders the driver connection string for the given settings.
func DSN(cfg config.Connection) string {
	params := url.Values{}
	if cfg.JournalMode != "" {
		params.Set("_journal_mode", strings.ToUpper(string(cfg.JournalMode)))
	}
	if cfg.BusyTimeout.Duration > 0 {
		params.Set("_busy_timeout", strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10))
	}
	if cfg.ForeignKeys {
		params.Set("_foreign_keys", "on")
	}
	switch {
	case cfg.ReadOnly:
		params.Set("mode", "ro")
	case cfg.NoCreate:
		params.Set("mode", "rw")
	}
	if cfg.CacheShared {
		params.Set("cache", "shared")
	}

	target := "file:" + cfg.Path
	if cfg.Memory() {
		target = "file::memory:"
	}
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// Open establishes one exclusive engine session.
//
// The returned handle is backed by exactly one driver connection: the pool
// inside database/sql is pinned to a single connection with no recycling, so
// session state such as pragmas and temporary tables survives for the
// lifetime of the handle.
func Open(cfg config.Connection) (*sqlx.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &OpenError{Target: describe(cfg), Err: err}
	}

	db, err := sqlx.Connect(driverName, DSN(cfg))
	if err != nil {
		return nil, &OpenError{Target: describe(cfg), Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	for _, pragma := range cfg.Pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &OpenError{Target: describe(cfg), Err: fmt.Errorf("apply pragma %q: %w", pragma, err)}
		}
	}

	if err := verifyJournalMode(db, cfg); err != nil {
		db.Close()
		return nil, &OpenError{Target: describe(cfg), Err: err}
	}
	return db, nil
}

// verifyJournalMode confirms a file-backed store actually adopted the
// requested mode. In-memory stores always report "memory" and are skipped.
func verifyJournalMode(db *sqlx.DB, cfg config.Connection) error {
	if cfg.JournalMode == "" || cfg.Memory() {
		return nil
	}
	var got string
	if err := db.Get(&got, "PRAGMA journal_mode"); err != nil {
		return fmt.Errorf("query journal mode: %w", err)
	}
	want := strings.ToLower(string(cfg.JournalMode))
	if !strings.EqualFold(got, want) {
		return &PragmaError{Name: "journal_mode", Want: want, Got: strings.ToLower(got)}
	}
	return nil
}

func describe(cfg config.Connection) string {
	if cfg.Memory() {
		return ":memory:"
	}
	return cfg.Path
}

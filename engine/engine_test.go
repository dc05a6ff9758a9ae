package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/litepool/config"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Connection
		want string
	}{
		{
			name: "memory default",
			cfg:  config.Connection{},
			want: "file::memory:",
		},
		{
			name: "memory shared cache",
			cfg:  config.Connection{CacheShared: true},
			want: "file::memory:?cache=shared",
		},
		{
			name: "file with journal and timeout",
			cfg: config.Connection{
				Path:        "/tmp/test.db",
				JournalMode: config.JournalWAL,
				BusyTimeout: config.Duration{Duration: 5 * time.Second},
			},
			want: "file:/tmp/test.db?_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "read only with foreign keys",
			cfg: config.Connection{
				Path:        "/tmp/test.db",
				ReadOnly:    true,
				ForeignKeys: true,
			},
			want: "file:/tmp/test.db?_foreign_keys=on&mode=ro",
		},
		{
			name: "existing file only",
			cfg: config.Connection{
				Path:     "/tmp/test.db",
				NoCreate: true,
			},
			want: "file:/tmp/test.db?mode=rw",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DSN(tc.cfg))
		})
	}
}

func TestOpenAppliesJournalModeAndPragmas(t *testing.T) {
	db, err := Open(config.Connection{
		Path:        filepath.Join(t.TempDir(), "engine.db"),
		JournalMode: config.JournalWAL,
		Pragmas:     []string{"PRAGMA user_version = 7"},
	})
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	require.Equal(t, "wal", mode)

	var version int
	require.NoError(t, db.Get(&version, "PRAGMA user_version"))
	require.Equal(t, 7, version)
}

func TestOpenPinsSingleConnection(t *testing.T) {
	db, err := Open(config.Connection{Path: filepath.Join(t.TempDir(), "engine.db")})
	require.NoError(t, err)
	defer db.Close()

	// Session state set through one call must be visible through the next:
	// there is exactly one underlying connection.
	_, err = db.Exec("CREATE TEMP TABLE scratch (n INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO scratch VALUES (1)")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Get(&n, "SELECT count(*) FROM scratch"))
	require.Equal(t, 1, n)
	require.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenMissingParentDirFails(t *testing.T) {
	_, err := Open(config.Connection{
		Path: filepath.Join(t.TempDir(), "no", "such", "dir", "engine.db"),
	})

	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
	require.Contains(t, openErr.Error(), "engine.db")
}

func TestOpenRejectsBrokenPragma(t *testing.T) {
	_, err := Open(config.Connection{
		Path:    filepath.Join(t.TempDir(), "engine.db"),
		Pragmas: []string{"PRAGMA ="},
	})

	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
}

func TestOpenValidatesSettings(t *testing.T) {
	_, err := Open(config.Connection{JournalMode: "journal"})

	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
}

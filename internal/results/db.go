// internal/results/db.go
//
// SQLite plumbing for the results store.
//   - Open creates the file (and its directory) with WAL, a busy timeout and
//     foreign keys enabled on every pooled connection.
//   - Migrate runs embedded *.sql files once each, tracked in _migrations.

package results

import (
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Open returns a pooled handle on the SQLite file at path. Pragmas travel in
// the DSN so the driver applies them to each new connection.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("results dir %s: %w", dir, err)
		}
	}
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Migrate brings db up to date with the scripts in fsys, oldest name first.
// A script that handles its own transaction or toggles foreign keys runs
// directly on the connection; all others run inside one transaction together
// with their _migrations row, so a failed script leaves no trace.
func Migrate(db *sql.DB, fsys fs.FS) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	done, err := appliedMigrations(db)
	if err != nil {
		return err
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)

	for _, name := range names {
		if done[name] {
			log.Debug().Str("migration", name).Msg("up to date")
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		script := string(body)
		if ownsTransaction(script) {
			err = runScript(db, name, script)
		} else {
			err = runInTx(db, name, script)
		}
		if err != nil {
			return err
		}
		log.Info().Str("migration", name).Msg("migration applied")
	}
	return nil
}

func appliedMigrations(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT name FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("read _migrations: %w", err)
	}
	defer rows.Close()
	done := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func ownsTransaction(script string) bool {
	s := strings.Join(strings.Fields(strings.ToUpper(script)), " ")
	return strings.Contains(s, "BEGIN TRANSACTION") ||
		strings.Contains(s, "PRAGMA FOREIGN_KEYS=OFF") ||
		strings.Contains(s, "PRAGMA FOREIGN_KEYS = OFF")
}

func runScript(x execer, name, script string) error {
	if _, err := x.Exec(script); err != nil {
		return fmt.Errorf("migration %s: %w", name, err)
	}
	if _, err := x.Exec(`INSERT INTO _migrations (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

func runInTx(db *sql.DB, name, script string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := runScript(tx, name, script); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

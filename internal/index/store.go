package index

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
)

const (
	// DriverName is the database/sql driver registered by go-sqlite3.
	DriverName = "sqlite3"
	// InmemPath opens a private in-memory database.
	InmemPath = ":memory:"
	// DefaultFilename is used for snapshot scratch files.
	DefaultFilename = "index.sqlite"

	busyTimeoutMs = 5000
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// openDB opens path with settings suited to its use. Live file databases run
// in WAL mode; scratch files used for snapshots keep a rollback journal so
// the main file alone holds every page once the handle is closed.
func openDB(path string, wal bool) (*sqlx.DB, error) {
	var dsn string
	if path == InmemPath {
		dsn = InmemPath
	} else {
		params := []string{"_busy_timeout=" + strconv.Itoa(busyTimeoutMs), "_txlock=immediate"}
		if wal {
			params = append(params, "_journal_mode=WAL")
		}
		dsn = "file:" + path + "?" + strings.Join(params, "&")
	}
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == InmemPath {
		// Every new connection to :memory: is a fresh database; pin one.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// migrate applies every embedded script newer than the database's
// user_version, in file-name order.
func migrate(ctx context.Context, db *sqlx.DB, log *zap.Logger) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		name := entry.Name()
		version, err := scriptVersion(name)
		if err != nil {
			return err
		}
		var current int
		if err := db.GetContext(ctx, &current, `PRAGMA user_version`); err != nil {
			return fmt.Errorf("read user_version: %w", err)
		}
		if version <= current {
			continue
		}
		script, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		log.Debug("applying index migration", zap.String("migration_name", name))
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bump user_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// scriptVersion extracts 2 from a name like "0002_add_column.sql".
func scriptVersion(filename string) (int, error) {
	v, err := strconv.Atoi(strings.Split(filename, "_")[0])
	if err != nil {
		return 0, fmt.Errorf("migration %s has no numeric prefix: %w", filename, err)
	}
	return v, nil
}

// backupInto copies every page of src over dest with the sqlite online
// backup API.
func backupInto(ctx context.Context, dest, src *sqlx.DB) error {
	destConn, err := dest.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire destination conn: %w", err)
	}
	defer destConn.Close() //nolint:errcheck // returned to pool

	srcConn, err := src.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire source conn: %w", err)
	}
	defer srcConn.Close() //nolint:errcheck // returned to pool

	return destConn.Raw(func(destDriver any) error {
		return srcConn.Raw(func(srcDriver any) error {
			d, ok := destDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("destination is %T, not a sqlite connection", destDriver)
			}
			s, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("source is %T, not a sqlite connection", srcDriver)
			}
			return copyPages(d, s)
		})
	})
}

func copyPages(dest, src *sqlite3.SQLiteConn) error {
	bk, err := dest.Backup("main", src, "main")
	if err != nil {
		return fmt.Errorf("start backup: %w", err)
	}
	defer bk.Close() //nolint:errcheck // Finish closes on success

	for {
		done, err := bk.Step(-1)
		if err != nil {
			return fmt.Errorf("backup step: %w", err)
		}
		if done {
			break
		}
	}
	if err := bk.Finish(); err != nil {
		return fmt.Errorf("finish backup: %w", err)
	}
	return nil
}

// writeSnapshot backs src up into a scratch file and streams the file to w.
func writeSnapshot(ctx context.Context, src *sqlx.DB, w io.Writer) (int64, error) {
	dir, err := os.MkdirTemp("", "index-snapshot-")
	if err != nil {
		return 0, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // scratch space

	path := filepath.Join(dir, DefaultFilename)
	dest, err := openDB(path, false)
	if err != nil {
		return 0, err
	}
	if err := backupInto(ctx, dest, src); err != nil {
		_ = dest.Close()
		return 0, err
	}
	if err := dest.Close(); err != nil {
		return 0, fmt.Errorf("close scratch db: %w", err)
	}

	f, err := os.Open(path) // #nosec G304 -- scratch file created above.
	if err != nil {
		return 0, fmt.Errorf("open scratch db: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("stream snapshot: %w", err)
	}
	return n, nil
}

// readSnapshot spools r to a scratch file and backs it up over dest.
func readSnapshot(ctx context.Context, dest *sqlx.DB, r io.Reader) error {
	dir, err := os.MkdirTemp("", "index-restore-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // scratch space

	path := filepath.Join(dir, DefaultFilename)
	f, err := os.Create(path) // #nosec G304 -- scratch file inside MkdirTemp.
	if err != nil {
		return fmt.Errorf("create scratch db: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("spool snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close scratch db: %w", err)
	}

	src, err := openDB(path, false)
	if err != nil {
		return apperr.E(apperr.ErrValidation, "open snapshot", err)
	}
	defer src.Close() //nolint:errcheck // scratch db

	var check string
	if err := src.GetContext(ctx, &check, `PRAGMA quick_check`); err != nil || check != "ok" {
		if err == nil {
			err = errors.New(check)
		}
		return apperr.E(apperr.ErrValidation, "verify snapshot", err)
	}
	return backupInto(ctx, dest, src)
}

// classify maps sqlite failures onto the shared error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return apperr.E(apperr.ErrStorageLocked, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.E(apperr.ErrConnectivity, op, err)
	}
	return apperr.E(apperr.ErrStorage, op, err)
}

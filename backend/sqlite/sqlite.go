package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"

	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/ledgerdocs/procflow/backend/sqlstore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

var dialect = sqlstore.Dialect{
	Name:           "sqlite",
	Placeholder:    sqlstore.QuestionPlaceholder,
	IsDuplicateKey: isDuplicateKey,
}

type sqliteBackend struct {
	*sqlstore.Store

	db *sql.DB
}

// NewInMemoryBackend creates a backend whose data is gone once it is closed.
func NewInMemoryBackend(opts ...sqlstore.Option) (*sqliteBackend, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}

	// Every connection to :memory: opens a separate database
	db.SetMaxOpenConns(1)

	return newBackend(db, sqlstore.ApplyOptions(opts...))
}

// NewSqliteBackend creates a backend on the database file at path, in WAL mode. Params are passed to the
// driver as query parameters.
func NewSqliteBackend(path string, opts ...sqlstore.Option) (*sqliteBackend, error) {
	options := sqlstore.ApplyOptions(opts...)

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(10000)")
	q.Add("_pragma", "journal_mode(WAL)")
	for _, k := range options.ParamKeys() {
		q.Add(k, options.Params[k])
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	return newBackend(db, options)
}

func newBackend(db *sql.DB, options *sqlstore.Options) (*sqliteBackend, error) {
	b := &sqliteBackend{db: db}

	store, err := sqlstore.Open(db, dialect, options, true, b.Migrate)
	if err != nil {
		return nil, err
	}

	b.Store = store

	return b, nil
}

// Migrate applies any pending database migrations.
func (sb *sqliteBackend) Migrate() error {
	driver, err := msqlite.WithInstance(sb.db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	return sqlstore.Migrate(migrationsFS, "sqlite", driver)
}

func isDuplicateKey(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}

	return serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

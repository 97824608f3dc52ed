package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ledgerdocs/procflow/backend/sqlstore"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

var dialect = sqlstore.Dialect{
	Name:           "postgres",
	Placeholder:    sqlstore.DollarPlaceholder,
	IsDuplicateKey: isDuplicateKey,
}

type postgresBackend struct {
	*sqlstore.Store

	db *sql.DB
}

// ConnString builds a postgres URL. sslmode defaults to disable unless given in params.
func ConnString(host string, port int, user, password, database string, params map[string]string) string {
	q := url.Values{}
	q.Set("sslmode", "disable")
	for k, v := range params {
		q.Set(k, v)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + database,
		RawQuery: q.Encode(),
	}

	return u.String()
}

func NewPostgresBackend(host string, port int, user, password, database string, opts ...sqlstore.Option) (*postgresBackend, error) {
	options := sqlstore.ApplyOptions(opts...)

	cfg, err := pgx.ParseConfig(ConnString(host, port, user, password, database, options.Params))
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	return newBackend(stdlib.OpenDB(*cfg), options, true)
}

// NewPostgresBackendWithDB creates a backend on an existing connection pool. Migrations are off unless
// enabled, and Close leaves db open.
func NewPostgresBackendWithDB(db *sql.DB, opts ...sqlstore.Option) (*postgresBackend, error) {
	opts = append([]sqlstore.Option{sqlstore.WithApplyMigrations(false)}, opts...)

	return newBackend(db, sqlstore.ApplyOptions(opts...), false)
}

func newBackend(db *sql.DB, options *sqlstore.Options, ownsConnection bool) (*postgresBackend, error) {
	b := &postgresBackend{db: db}

	store, err := sqlstore.Open(db, dialect, options, ownsConnection, b.Migrate)
	if err != nil {
		return nil, err
	}

	b.Store = store

	return b, nil
}

// Migrate applies any pending database migrations.
func (pb *postgresBackend) Migrate() error {
	driver, err := mpostgres.WithInstance(pb.db, &mpostgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	return sqlstore.Migrate(migrationsFS, "postgres", driver)
}

func isDuplicateKey(err error) bool {
	var perr *pgconn.PgError
	return errors.As(err, &perr) && perr.Code == uniqueViolation
}

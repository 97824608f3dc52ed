package mysql

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	mmysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/ledgerdocs/procflow/backend/sqlstore"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

const errDuplicateEntry = 1062

var dialect = sqlstore.Dialect{
	Name:           "mysql",
	Placeholder:    sqlstore.QuestionPlaceholder,
	IsDuplicateKey: isDuplicateKey,
}

type mysqlBackend struct {
	*sqlstore.Store

	config *mysql.Config
}

// NewMysqlBackend connects to database over TCP. Params are set as system variables on every connection,
// e.g. time_zone or sql_mode.
func NewMysqlBackend(host string, port int, user, password, database string, opts ...sqlstore.Option) (*mysqlBackend, error) {
	options := sqlstore.ApplyOptions(opts...)

	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.InterpolateParams = true
	if len(options.Params) > 0 {
		cfg.Params = options.Params
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring mysql connection: %w", err)
	}

	b := &mysqlBackend{config: cfg}

	store, err := sqlstore.Open(sql.OpenDB(connector), dialect, options, true, b.Migrate)
	if err != nil {
		return nil, err
	}

	b.Store = store

	return b, nil
}

// Migrate applies any pending database migrations. The migrations need multi statement support, so they
// run on a separate connection.
func (b *mysqlBackend) Migrate() error {
	cfg := b.config.Clone()
	cfg.MultiStatements = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return fmt.Errorf("configuring schema connection: %w", err)
	}

	db := sql.OpenDB(connector)
	defer db.Close()

	driver, err := mmysql.WithInstance(db, &mmysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	return sqlstore.Migrate(migrationsFS, "mysql", driver)
}

func isDuplicateKey(err error) bool {
	var merr *mysql.MySQLError
	return errors.As(err, &merr) && merr.Number == errDuplicateEntry
}

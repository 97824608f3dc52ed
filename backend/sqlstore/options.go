package sqlstore

import (
	"database/sql"
	"sort"

	"github.com/ledgerdocs/procflow/backend"
)

// Options configure the SQL backends.
type Options struct {
	*backend.Options

	// ApplyMigrations migrates the schema when the backend is created. On by default.
	ApplyMigrations bool

	// Params are added to the connection, e.g. sslmode for postgres or a _pragma for sqlite.
	Params map[string]string

	// ConfigureDB is called with the connection pool before it is used, e.g. to set pool limits.
	ConfigureDB func(db *sql.DB)
}

type Option func(*Options)

func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		Options:         backend.ApplyOptions(),
		ApplyMigrations: true,
		Params:          map[string]string{},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func WithApplyMigrations(apply bool) Option {
	return func(o *Options) {
		o.ApplyMigrations = apply
	}
}

func WithParam(key, value string) Option {
	return func(o *Options) {
		o.Params[key] = value
	}
}

func WithConfigureDB(f func(db *sql.DB)) Option {
	return func(o *Options) {
		o.ConfigureDB = f
	}
}

func WithBackendOptions(opts ...backend.BackendOption) Option {
	return func(o *Options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}

// ParamKeys returns the keys of Params in a stable order.
func (o *Options) ParamKeys() []string {
	keys := make([]string, 0, len(o.Params))
	for k := range o.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func (o *Options) configure(db *sql.DB) {
	if o.ConfigureDB != nil {
		o.ConfigureDB(db)
	}
}

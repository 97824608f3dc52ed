package postgres

import (
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/backend/test"
	"github.com/stretchr/testify/require"
)

// These tests need a PostgreSQL server, by default postgres:root on localhost:5432. POSTGRES_HOST
// overrides the host.

func testHost() string {
	if h := os.Getenv("POSTGRES_HOST"); h != "" {
		return h
	}

	return "localhost"
}

func adminDB(t *testing.T) *sql.DB {
	db, err := sql.Open("pgx", ConnString(testHost(), 5432, "postgres", "root", "postgres", nil))
	require.NoError(t, err)

	return db
}

func Test_ConnString(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{
			name: "defaults to sslmode disable",
			want: "postgres://user:p%40ss@db:5432/docs?sslmode=disable",
		},
		{
			name:   "params override",
			params: map[string]string{"sslmode": "require", "application_name": "procflow"},
			want:   "postgres://user:p%40ss@db:5432/docs?application_name=procflow&sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ConnString("db", 5432, "user", "p@ss", "docs", tt.params))
		})
	}
}

func Test_PostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	var dbName string

	// A database per test keeps the schema clean
	test.BackendTest(t, func() backend.Backend {
		dbName = "procflow_" + strings.ReplaceAll(uuid.NewString(), "-", "")

		admin := adminDB(t)
		defer admin.Close()

		_, err := admin.Exec("CREATE DATABASE " + dbName)
		require.NoError(t, err)

		b, err := NewPostgresBackend(testHost(), 5432, "postgres", "root", dbName)
		require.NoError(t, err)

		return b
	}, func(b backend.Backend) {
		require.NoError(t, b.Close())

		admin := adminDB(t)
		defer admin.Close()

		_, err := admin.Exec("DROP DATABASE IF EXISTS " + dbName + " WITH (FORCE)")
		require.NoError(t, err)
	})
}

func Test_PostgresBackend_WithDB(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	db := adminDB(t)
	defer db.Close()

	b, err := NewPostgresBackendWithDB(db)
	require.NoError(t, err)

	// The pool belongs to the caller
	require.NoError(t, b.Close())
	require.NoError(t, db.Ping())
}

package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRejectsUnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "svc", Name: "accounts", Password: "hunter2"})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=localhost")
	require.Contains(t, dsn, "port=5432")
	require.Contains(t, dsn, "user=svc")
	require.Contains(t, dsn, "dbname=accounts")
	require.Contains(t, dsn, "password=hunter2")

	_, err = buildPostgresDSN(Config{})
	require.Error(t, err)

	dsn, err = buildPostgresDSN(Config{DSN: "postgres://override"})
	require.NoError(t, err)
	require.Equal(t, "postgres://override", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "svc", Name: "accounts", Password: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, "svc:hunter2@tcp(127.0.0.1:3306)/accounts?charset=utf8mb4&parseTime=True&loc=Local", dsn)

	dsn, err = buildMySQLDSN(Config{User: "svc", Name: "accounts", Host: "db", Port: 3307})
	require.NoError(t, err)
	require.Equal(t, "svc@tcp(db:3307)/accounts?charset=utf8mb4&parseTime=True&loc=Local", dsn)

	_, err = buildMySQLDSN(Config{})
	require.Error(t, err)
}

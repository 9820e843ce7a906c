package gormdb

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	my := Config{Driver: DriverMySQL, Host: "db", User: "root", Password: "pw", DBName: "ledger"}
	assert.Equal(t, "root:pw@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=True&loc=UTC", my.DSN())

	pg := Config{Driver: DriverPostgres, Host: "db", Port: 6543, User: "u", Password: "p", DBName: "ledger"}
	assert.Equal(t, "host=db port=6543 user=u password=p dbname=ledger sslmode=disable TimeZone=UTC", pg.DSN())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{Driver: DriverPostgres, Host: "db", DBName: "ledger"}).Validate())
	assert.Error(t, (&Config{Driver: "oracle", Host: "db", DBName: "ledger"}).Validate())
	assert.Error(t, (&Config{Driver: DriverMySQL}).Validate())
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(Config{Driver: "sqlserver"}, nil)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	client, err := Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), Config{MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	require.NotNil(t, client.DB())

	var one int
	require.NoError(t, client.DB().Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
	assert.NoError(t, client.Close())
}

package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/postgres"
)

// newMockClient monitors pings so Ping paths can be asserted with ExpectPing.
func newMockClient(t *testing.T) (*postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return postgres.NewClientFromDB(db), mock
}

package versioning

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockStore wires the store to a sqlmock-backed Postgres connection so
// connection-level failures can be injected.
func newMockStore(t *testing.T) (*VersionStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewVersionStore(db), mock
}

func TestVersionStore_GetStorageUnavailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrConnDone)

	_, err := store.Get(context.Background(), "any-id")
	var unavailable *StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestVersionStore_ListStorageUnavailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count`).WillReturnError(sql.ErrConnDone)

	_, _, _, err := store.ListByEvent(context.Background(), "EVT-001", 10, "")
	var unavailable *StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestVersionStore_SaveStorageUnavailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE`).WillReturnError(sql.ErrConnDone)

	record := &EventVersionRecord{
		ID:      "some-id",
		EventNo: "EVT-001",
		Status:  StatusDraft,
	}
	err := store.Save(context.Background(), record)
	var unavailable *StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

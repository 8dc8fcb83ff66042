package fellowship

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"sync"
	"testing"
)

func TestCreateDB_SQLite(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "audit.sqlite3")

	db, err := CreateDB(ctx, dbTypeSQLite, dbPath, nil, DefaultDatabaseSlowThreshold)
	require.NoError(t, err)

	d := newDatabase(db, nil, false)
	t.Cleanup(
		func() {
			_ = d.Close()
		},
	)

	assert.True(t, db.Migrator().HasTable(&InteractionLog{}))

	var journalMode string
	require.NoError(t, db.Raw("pragma journal_mode;").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, sqliteMaxOpenConns, sqlDB.Stats().MaxOpenConnections)
}

func TestCreateDB_UnsupportedType(t *testing.T) {
	_, err := CreateDB(
		context.Background(),
		"mysql",
		"whatever",
		nil,
		DefaultDatabaseSlowThreshold,
	)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestDatabase_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	db, err := CreateDB(
		ctx,
		dbTypeSQLite,
		filepath.Join(t.TempDir(), "audit.sqlite3"),
		nil,
		DefaultDatabaseSlowThreshold,
	)
	require.NoError(t, err)
	d := newDatabase(db, nil, false)
	t.Cleanup(
		func() {
			_ = d.Close()
		},
	)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, createErr := d.Create(
				ctx,
				&InteractionLog{
					InteractionID: "interaction",
					UserID:        testUserID,
					Method:        discordInteractionReceiveMethodGateway,
				},
			)
			errs <- createErr
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		assert.NoError(t, e)
	}

	var count int64
	require.NoError(t, db.Model(&InteractionLog{}).Count(&count).Error)
	assert.Equal(t, int64(writers), count)
}

package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rofiliofernandes/somudai/internal/config"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer Close(db)

	for _, m := range models.AllModels() {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestUniquePairTranslatesToDuplicatedKey(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, db.Create(&models.Conversation{ParticipantA: "a", ParticipantB: "b"}).Error)
	err = db.Create(&models.Conversation{ParticipantA: "b", ParticipantB: "a"}).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestInitializeSQLite(t *testing.T) {
	cfg := &config.Config{
		DBDriver:    "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "test.db"),
		Environment: "test",
	}
	db, err := Initialize(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	assert.NoError(t, Close(db))
}

func TestMigrateNil(t *testing.T) {
	assert.Error(t, Migrate(nil))
}

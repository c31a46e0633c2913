package storage_test

import (
	"testing"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/storage"
	"nexochat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDB_UnsupportedDriver(t *testing.T) {
	_, err := storage.OpenDB(config.Database{Driver: "oracle"})
	assert.ErrorContains(t, err, "oracle")
}

func TestMigrate_CreatesTables(t *testing.T) {
	db := storagetest.NewDB(t)

	for _, table := range []string{"profiles", "blocked_users", "conversations", "messages", "notifications"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestUniqueEmail_TranslatesToConflict(t *testing.T) {
	db := storagetest.NewDB(t)
	storagetest.CreateProfile(t, db, "dup@example.com")

	err := db.Create(&models.Profile{Email: "dup@example.com"}).Error
	require.Error(t, err)
	assert.True(t, apperror.Is(apperror.FromDB(err, "profile"), apperror.CodeConflict))
}

func TestForeignKeys_Enforced(t *testing.T) {
	db := storagetest.NewDB(t)

	err := db.Create(&models.Message{ConversationID: "missing", SenderID: "x", Content: "hi"}).Error
	require.Error(t, err, "a message must reference an existing conversation")
	assert.True(t, apperror.Is(apperror.FromDB(err, "message"), apperror.CodeNotFound))
}

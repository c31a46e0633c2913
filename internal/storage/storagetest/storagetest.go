// Package storagetest provides throwaway in-memory databases and fixtures for
// package tests.
package storagetest

import (
	"fmt"
	"testing"

	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := storage.OpenDB(config.Database{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	t.Cleanup(func() {
		if sqlDb, err := db.DB(); err == nil {
			_ = sqlDb.Close()
		}
	})
	return db
}

// CreateProfile inserts a profile with the given email and optional display name.
func CreateProfile(t testing.TB, db *gorm.DB, email string, displayName ...string) models.Profile {
	t.Helper()

	p := models.Profile{Email: email}
	if len(displayName) > 0 {
		p.DisplayName = displayName[0]
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Package storetest opens throwaway SQLite-backed stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/store"

	"gorm.io/gorm"
)

// Open creates a migrated SQLite database under t.TempDir().
func Open(t testing.TB) (*store.Store, *gorm.DB) {
	t.Helper()

	url := "sqlite://" + filepath.Join(t.TempDir(), "storefront.db")
	db, err := database.New(url, database.Options{LogLevel: "error"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return store.New(db.DB), db.DB
}

// Site inserts a site for the given domain.
func Site(t testing.TB, s *store.Store, domain string) *models.Site {
	t.Helper()

	site := &models.Site{Domain: domain}
	if err := s.CreateSite(context.Background(), site); err != nil {
		t.Fatalf("create site: %v", err)
	}
	return site
}

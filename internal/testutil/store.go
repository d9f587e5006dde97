// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/daviddao/mailwatch/internal/db"
)

// NewTestDB creates an in-memory database with all migrations applied.
// It automatically closes the database when the test completes.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	d, err := db.Open(db.Memory)
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}

	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})

	return d
}

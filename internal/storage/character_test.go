package storage

import (
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=test dbname=test"), &gorm.Config{
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("failed to open dry run db: %v", err)
	}
	return db
}

func TestSimilarScopeOrdersByDistance(t *testing.T) {
	db := newDryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []characterModel
		return tx.Scopes(similarScope("user-1", []float32{0.1, 0.2, 0.3}, 3)).Find(&rows)
	})

	if !strings.Contains(sql, "ORDER BY embedding <=> ") {
		t.Fatalf("expected cosine distance ordering, got %q", sql)
	}
	if !strings.Contains(sql, "embedding IS NOT NULL") {
		t.Fatalf("expected null embedding filter, got %q", sql)
	}
	if !strings.Contains(sql, "LIMIT 3") {
		t.Fatalf("expected top-k limit, got %q", sql)
	}
}

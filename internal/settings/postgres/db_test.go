package postgres

import (
	"context"
	"strings"
	"testing"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if !strings.Contains(err.Error(), "settings dsn is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigurePoolAppliesLimits(t *testing.T) {
	db, _ := newSQLMock(t)
	configurePool(db, DBConfig{MaxOpenConns: 3})
	if got := db.Stats().MaxOpenConnections; got != 3 {
		t.Fatalf("MaxOpenConnections = %d, want 3", got)
	}
}

package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsDiscovered(t *testing.T) {
	sorted := Migrations.Sorted()
	if len(sorted) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	if sorted[0].Name != "20251014000001" || sorted[0].Comment != "users" {
		t.Fatalf("unexpected first migration: %s %s", sorted[0].Name, sorted[0].Comment)
	}
}

func TestUsersMigrationShape(t *testing.T) {
	b, err := fs.ReadFile(FS, "20251014000001_users.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sql := string(b)
	for _, want := range []string{"auth.users", "external_id       text        UNIQUE", "email             text        NOT NULL UNIQUE", "otp_expiry"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("users migration missing %q", want)
		}
	}
}

package migrate

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"relay-gate/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	if err := Run("", "up"); !errors.Is(err, ErrNoDSN) {
		t.Errorf("Run(\"\") error = %v, want ErrNoDSN", err)
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP", "Down"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("postgres://localhost/test", direction)
			if err == nil {
				t.Fatalf("Run with direction %q should return error", direction)
			}
			if !strings.Contains(err.Error(), "direction") {
				t.Errorf("error = %q, should mention direction", err.Error())
			}
		})
	}
}

func TestMigrationFS_HasPairedFiles(t *testing.T) {
	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("migrations: %d up, %d down; want equal and non-zero", ups, downs)
	}
}

func TestMigrationFS_CreatesVerificationTables(t *testing.T) {
	b, err := fs.ReadFile(db.MigrationFS, "migrations/000001_verification.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sql := string(b)
	for _, table := range []string{"settings", "verified_users"} {
		if !strings.Contains(sql, table) {
			t.Errorf("initial migration should create %s", table)
		}
	}
}

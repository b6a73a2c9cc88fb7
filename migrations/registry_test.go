package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystemsReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}
	if filesystems[0].Dialect != DialectPostgres || filesystems[1].Dialect != DialectSQLite {
		t.Fatalf("unexpected dialect order %#v", filesystems)
	}
	if filesystems[1].Path != "data/sql/migrations/sqlite" {
		t.Fatalf("unexpected sqlite path %q", filesystems[1].Path)
	}
}

func TestRegisterUsesValidationTargets(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect+":"+label)
		return nil
	}, WithValidationTargets(" SQLite ", "sqlite"), WithSourceLabel("tests"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != "sqlite:tests" {
		t.Fatalf("expected a single sqlite registration, got %v", calls)
	}
	if len(reg.ValidationTargets) != 1 {
		t.Fatalf("expected deduped targets, got %v", reg.ValidationTargets)
	}
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestFilesystemsAcceptsFlatSource(t *testing.T) {
	flat := fstest.MapFS{
		"00001_x.up.sql":        {Data: []byte("SELECT 1;")},
		"sqlite/00001_x.up.sql": {Data: []byte("SELECT 1;")},
	}
	filesystems, err := Filesystems(flat)
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if filesystems[0].Path != "." || filesystems[1].Path != "sqlite" {
		t.Fatalf("unexpected flat paths %#v", filesystems)
	}
	if _, err := Filesystems(fstest.MapFS{}); err == nil {
		t.Fatalf("expected empty source error")
	}
}

func TestSQLiteCredentialBlobMigrationAppliesAndRollsBack(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-credential-blobs?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	sqliteFS := filesystems[1].FS
	ctx := context.Background()

	if err := execSQLMigration(ctx, db, sqliteFS, "00001_miniapp_credential_blobs.up.sql"); err != nil {
		t.Fatalf("apply up: %v", err)
	}
	insert := `INSERT INTO miniapp_credential_blobs (id, blob_key, payload) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "a", "access_token", []byte("{}")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "b", "access_token", []byte("{}")); err == nil {
		t.Fatalf("expected unique blob_key violation")
	}
	if err := execSQLMigration(ctx, db, sqliteFS, "00001_miniapp_credential_blobs.down.sql"); err != nil {
		t.Fatalf("apply down: %v", err)
	}
	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'miniapp_credential_blobs'").Scan(&name)
	if err != sql.ErrNoRows {
		t.Fatalf("expected table to be dropped, got %q %v", name, err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}

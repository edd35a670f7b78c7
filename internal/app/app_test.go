package app_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"dstash/internal/app"
	"dstash/internal/config"
	"dstash/internal/journal"
	"dstash/internal/model"
)

// testConfig builds a file-backed config under a temp dir with inline
// placement, so tests run without remote credentials or pile keys.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig(t.TempDir())
	cfg.Transfer = config.TransferConfig{Type: "memory"}
	cfg.Placement = config.PlacementConfig{
		Rules: []config.PlacementRule{{Inline: true}},
	}
	cfg.Log.StderrLevel = "error"
	return cfg
}

// mustApp migrates the configured database and opens an App for the
// named operation.
func mustApp(t *testing.T, cfg *config.Config, operation string) *app.App {
	t.Helper()

	if _, err := app.MigrateDB(cfg); err != nil {
		t.Fatalf("MigrateDB() error = %v", err)
	}
	a, err := app.NewApp(context.Background(), cfg, operation)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return a
}

func TestNewApp_RequiresMigratedSchema(t *testing.T) {
	cfg := testConfig(t)

	if _, err := app.NewApp(context.Background(), cfg, "Ls"); err == nil {
		t.Fatal("NewApp() on an unmigrated database expected error")
	}

	a := mustApp(t, cfg, "Ls")
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestApp_PutGetRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "report.txt")
	content := []byte("quarterly numbers\n")
	if err := os.WriteFile(src, content, 0755); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	a := mustApp(t, cfg, "Put")
	f, err := a.Put(ctx, src, "/report.txt")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if f.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", f.Size, len(content))
	}
	if !f.Executable {
		t.Error("Executable = false, want true")
	}

	var buf bytes.Buffer
	if err := a.Get(ctx, "/report.txt", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("Get() = %q, want %q", buf.Bytes(), content)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The invocation left exactly one finished journal entry.
	h := mustApp(t, cfg, "History")
	defer h.Close()
	ops, err := h.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("len(ops) = %d, want 1", len(ops))
	}
	if ops[0].Operation != "Put" {
		t.Errorf("Operation = %q, want %q", ops[0].Operation, "Put")
	}
	if ops[0].Parameters != "/report.txt" {
		t.Errorf("Parameters = %q, want %q", ops[0].Parameters, "/report.txt")
	}
	if ops[0].Status != journal.StatusSuccess {
		t.Errorf("Status = %q, want %q", ops[0].Status, journal.StatusSuccess)
	}
	if ops[0].FinishedAt == nil {
		t.Error("FinishedAt = nil, want set")
	}
}

func TestApp_PutRejectsMissingSource(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a := mustApp(t, cfg, "Put")
	defer a.Close()

	if _, err := a.Put(ctx, "/nonexistent/file", "/f.txt"); err == nil {
		t.Fatal("Put() expected error for missing source")
	}
}

func TestApp_FailureMarksJournalEntry(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a := mustApp(t, cfg, "Mkdir")
	if _, err := a.Mkdir(ctx, "/missing/child"); err == nil {
		t.Fatal("Mkdir() expected error for missing parent")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h := mustApp(t, cfg, "History")
	defer h.Close()
	ops, err := h.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("len(ops) = %d, want 1", len(ops))
	}
	if ops[0].Status != journal.StatusError {
		t.Errorf("Status = %q, want %q", ops[0].Status, journal.StatusError)
	}
}

func TestApp_ReadCommandsLeaveNoJournalEntry(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a := mustApp(t, cfg, "Ls")
	if _, err := a.Ls(ctx, "/"); err != nil {
		t.Fatalf("Ls() error = %v", err)
	}
	if _, err := a.Info(ctx, "/"); err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h := mustApp(t, cfg, "History")
	defer h.Close()
	ops, err := h.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("len(ops) = %d, want 0", len(ops))
	}
}

func TestApp_SeedsConfiguredCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = []config.CredentialSeed{
		{Pool: "default", Owner: "alice@example.com"},
		{Pool: "default", Owner: "bob@example.com"},
	}
	ctx := context.Background()

	a := mustApp(t, cfg, "Ls")
	creds, err := a.Credentials(ctx, "default")
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("len(creds) = %d, want 2", len(creds))
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Seeding is idempotent across invocations.
	b := mustApp(t, cfg, "Ls")
	defer b.Close()
	creds, err = b.Credentials(ctx, "default")
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if len(creds) != 2 {
		t.Errorf("after reopen len(creds) = %d, want 2", len(creds))
	}
}

func TestApp_CredentialLifecycle(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a := mustApp(t, cfg, "AddCredential")
	defer a.Close()

	c, err := a.AddCredential(ctx, "default", "carol@example.com")
	if err != nil {
		t.Fatalf("AddCredential() error = %v", err)
	}

	if err := a.MarkCredentialExhausted(ctx, c.ID); err != nil {
		t.Fatalf("MarkCredentialExhausted() error = %v", err)
	}
	creds, err := a.Credentials(ctx, "default")
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if len(creds) != 1 || creds[0].QuotaExhaustedAt == nil {
		t.Fatalf("credential not marked exhausted: %+v", creds)
	}

	if err := a.ClearCredentialExhausted(ctx, c.ID); err != nil {
		t.Fatalf("ClearCredentialExhausted() error = %v", err)
	}
	creds, err = a.Credentials(ctx, "default")
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if creds[0].QuotaExhaustedAt != nil {
		t.Error("QuotaExhaustedAt still set after clear")
	}
}

func TestApp_CreatePile(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a := mustApp(t, cfg, "CreatePile")
	defer a.Close()

	root := t.TempDir()
	p, err := a.CreatePile(ctx, root, 100, 0.5)
	if err != nil {
		t.Fatalf("CreatePile() error = %v", err)
	}
	if p.ID == 0 {
		t.Fatal("CreatePile() returned zero id")
	}

	// The on-disk layout is initialized immediately.
	manifest := filepath.Join(root, strconv.FormatInt(p.ID, 10), "manifest.cbor")
	if _, err := os.Stat(manifest); err != nil {
		t.Errorf("pile directory not initialized: %v", err)
	}

	piles, err := a.Piles(ctx)
	if err != nil {
		t.Fatalf("Piles() error = %v", err)
	}
	if len(piles) != 1 {
		t.Fatalf("len(piles) = %d, want 1", len(piles))
	}

	cells, err := a.Cells(ctx, p.ID)
	if err != nil {
		t.Fatalf("Cells() error = %v", err)
	}
	if len(cells) != 0 {
		t.Errorf("len(cells) = %d, want 0 before any write", len(cells))
	}
}

func TestApp_InitKeys(t *testing.T) {
	cfg := testConfig(t)

	a := mustApp(t, cfg, "InitKeys")
	defer a.Close()

	if a.KeysConfigured() {
		t.Fatal("KeysConfigured() = true before setup")
	}
	if err := a.InitKeys("open sesame"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	if !a.KeysConfigured() {
		t.Fatal("KeysConfigured() = false after setup")
	}
	if err := a.InitKeys("other"); !errors.Is(err, model.ErrAlreadyExists) {
		t.Errorf("second InitKeys() error = %v, want ErrAlreadyExists", err)
	}
	if err := a.Unlock("open sesame"); err != nil {
		t.Errorf("Unlock() error = %v", err)
	}
}

func TestApp_RemoteAdmin(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a := mustApp(t, cfg, "RegisterBlob")
	defer a.Close()

	castagnoli := crc32.MakeTable(crc32.Castagnoli)
	for _, locator := range []string{"chunk-1", "chunk-2"} {
		if _, err := a.RegisterBlob(ctx, model.NewBlob{
			Locator: locator,
			MD5:     md5.Sum([]byte(locator)),
			CRC32C:  crc32.Checksum([]byte(locator), castagnoli),
			Size:    1024,
		}); err != nil {
			t.Fatalf("RegisterBlob(%q) error = %v", locator, err)
		}
	}

	key := bytes.Repeat([]byte{7}, 16)
	seq, err := a.CreateSequence(ctx, model.CipherAES128GCM, key, []string{"chunk-1", "chunk-2"})
	if err != nil {
		t.Fatalf("CreateSequence() error = %v", err)
	}

	got, err := a.SequenceInfo(ctx, seq.ID)
	if err != nil {
		t.Fatalf("SequenceInfo() error = %v", err)
	}
	if len(got.Locators) != 2 || got.Locators[0] != "chunk-1" {
		t.Errorf("Locators = %v, want [chunk-1 chunk-2]", got.Locators)
	}

	b, seqs, err := a.BlobInfo(ctx, "chunk-1")
	if err != nil {
		t.Fatalf("BlobInfo() error = %v", err)
	}
	if b.Size != 1024 {
		t.Errorf("Size = %d, want 1024", b.Size)
	}
	if len(seqs) != 1 || seqs[0] != seq.ID {
		t.Errorf("sequences using chunk-1 = %v, want [%d]", seqs, seq.ID)
	}

	// A blob stays until its sequence goes away.
	if err := a.DeleteBlob(ctx, "chunk-1"); !errors.Is(err, model.ErrIntegrity) {
		t.Errorf("DeleteBlob() error = %v, want ErrIntegrity", err)
	}
	if err := a.DeleteSequence(ctx, seq.ID); err != nil {
		t.Fatalf("DeleteSequence() error = %v", err)
	}
	if err := a.DeleteBlob(ctx, "chunk-1"); err != nil {
		t.Errorf("DeleteBlob() after sequence removal error = %v", err)
	}
}

func TestDBStatus(t *testing.T) {
	cfg := testConfig(t)

	if _, err := app.DBStatus(cfg); err == nil {
		t.Fatal("DBStatus() on an unmigrated database expected error")
	}

	st, err := app.MigrateDB(cfg)
	if err != nil {
		t.Fatalf("MigrateDB() error = %v", err)
	}
	if !st.Current() {
		t.Errorf("after migrate Status = %+v, want current", st)
	}

	st, err = app.DBStatus(cfg)
	if err != nil {
		t.Fatalf("DBStatus() after migrate error = %v", err)
	}
	if !st.Current() {
		t.Errorf("DBStatus() = %+v, want current", st)
	}
}

func TestBackupDB(t *testing.T) {
	cfg := testConfig(t)
	if _, err := app.MigrateDB(cfg); err != nil {
		t.Fatalf("MigrateDB() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := app.BackupDB(cfg, dest); err != nil {
		t.Fatalf("BackupDB() error = %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("backup file is empty")
	}
}

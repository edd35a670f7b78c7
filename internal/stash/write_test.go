package stash_test

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/zeebo/blake3"

	"dstash/internal/chunkenc"
	"dstash/internal/config"
	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/testutil"
)

func TestService_PutFile(t *testing.T) {
	ctx := context.Background()

	t.Run("stores inline content and links the file", func(t *testing.T) {
		ts := newTestStash(t, inlineRules(), 0)
		content := []byte("hello stash")
		mtime := time.Date(2025, 11, 20, 8, 30, 0, 0, time.UTC)

		f, err := ts.svc.PutFile(ctx, "/", "hello.txt", content, false, mtime)
		if err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}
		if f.Size != int64(len(content)) {
			t.Errorf("Size = %d, want %d", f.Size, len(content))
		}
		if !f.Mtime.Equal(mtime) {
			t.Errorf("Mtime = %v, want %v", f.Mtime, mtime)
		}
		if f.Executable {
			t.Error("Executable = true, want false")
		}

		if got := ts.readBack(t, "/hello.txt"); !bytes.Equal(got, content) {
			t.Errorf("content = %q, want %q", got, content)
		}

		bindings := ts.mustBindings(t, f.ID)
		if len(bindings) != 1 || bindings[0].Domain != model.DomainInline {
			t.Fatalf("bindings = %+v, want one inline binding", bindings)
		}

		dirents, err := ts.svc.Ls(ctx, "/")
		if err != nil {
			t.Fatalf("Ls() error = %v", err)
		}
		if len(dirents) != 1 || dirents[0].Basename != "hello.txt" {
			t.Errorf("Ls(/) = %+v, want one dirent hello.txt", dirents)
		}
	})

	t.Run("records the digest and birth metadata", func(t *testing.T) {
		ts := newTestStash(t, inlineRules(), 0)
		content := []byte("digest me")

		f, err := ts.svc.PutFile(ctx, "/", "d.txt", content, true, time.Time{})
		if err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}

		sum := blake3.Sum256(content)
		if !bytes.Equal(f.B3Sum, sum[:]) {
			t.Errorf("B3Sum = %x, want %x", f.B3Sum, sum[:])
		}
		if !f.Executable {
			t.Error("Executable = false, want true")
		}
		if f.Birth.Hostname != testHostname {
			t.Errorf("Birth.Hostname = %q, want %q", f.Birth.Hostname, testHostname)
		}
		if !f.Mtime.Equal(ts.clock.Now()) {
			t.Errorf("Mtime = %v, want clock time %v", f.Mtime, ts.clock.Now())
		}
	})

	t.Run("rejects a taken basename", func(t *testing.T) {
		ts := newTestStash(t, inlineRules(), 0)

		if _, err := ts.svc.PutFile(ctx, "/", "a.txt", []byte("first"), false, time.Time{}); err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}
		_, err := ts.svc.PutFile(ctx, "/", "a.txt", []byte("second"), false, time.Time{})
		if !errors.Is(err, model.ErrAlreadyExists) {
			t.Fatalf("PutFile() error = %v, want ErrAlreadyExists", err)
		}

		if got := ts.readBack(t, "/a.txt"); string(got) != "first" {
			t.Errorf("content = %q, want the original", got)
		}
	})

	t.Run("rejects an invalid basename", func(t *testing.T) {
		ts := newTestStash(t, inlineRules(), 0)

		_, err := ts.svc.PutFile(ctx, "/", "..", []byte("x"), false, time.Time{})
		if !errors.Is(err, model.ErrInvalidName) {
			t.Fatalf("PutFile() error = %v, want ErrInvalidName", err)
		}
	})

	t.Run("fails when no placement rule matches", func(t *testing.T) {
		ts := newTestStash(t, []config.PlacementRule{
			{PathPrefix: "/photos/", Inline: true},
		}, 0)

		_, err := ts.svc.PutFile(ctx, "/", "doc.txt", []byte("x"), false, time.Time{})
		if !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("PutFile() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("fails when the matching rule names no storage", func(t *testing.T) {
		ts := newTestStash(t, []config.PlacementRule{{}}, 0)

		_, err := ts.svc.PutFile(ctx, "/", "doc.txt", []byte("x"), false, time.Time{})
		if !errors.Is(err, model.ErrInvalidArgument) {
			t.Fatalf("PutFile() error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("writes a cell object for a desired pile", func(t *testing.T) {
		ts := newTestStash(t, nil, 0)
		p := ts.mustCreatePile(t, 100, 0)
		ts.setRules(t, []config.PlacementRule{{Piles: []int64{p.ID}}})

		content := []byte("pile bound content")
		f, err := ts.svc.PutFile(ctx, "/", "p.bin", content, false, time.Time{})
		if err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}

		bindings := ts.mustBindings(t, f.ID)
		if len(bindings) != 1 || bindings[0].Domain != model.DomainPile {
			t.Fatalf("bindings = %+v, want one pile binding", bindings)
		}
		cellID, err := strconv.ParseInt(bindings[0].Locator, 10, 64)
		if err != nil {
			t.Fatalf("pile locator %q is not a cell id", bindings[0].Locator)
		}
		count, err := ts.cells.CountObjects(&p, cellID)
		if err != nil {
			t.Fatalf("CountObjects() error = %v", err)
		}
		if count != 1 {
			t.Errorf("cell objects = %d, want 1", count)
		}

		if got := ts.readBack(t, "/p.bin"); !bytes.Equal(got, content) {
			t.Errorf("content = %q, want %q", got, content)
		}
	})

	t.Run("rotates to a fresh cell once one fills up", func(t *testing.T) {
		ts := newTestStash(t, nil, 0)
		p := ts.mustCreatePile(t, 2, 0.5)
		ts.setRules(t, []config.PlacementRule{{Piles: []int64{p.ID}}})

		var files []model.File
		for _, name := range []string{"one", "two", "three"} {
			f, err := ts.svc.PutFile(ctx, "/", name, []byte(name), false, time.Time{})
			if err != nil {
				t.Fatalf("PutFile(%s) error = %v", name, err)
			}
			files = append(files, f)
		}

		first := ts.mustBindings(t, files[0].ID)[0].Locator
		second := ts.mustBindings(t, files[1].ID)[0].Locator
		third := ts.mustBindings(t, files[2].ID)[0].Locator
		if first != second {
			t.Errorf("first two files landed in cells %s and %s, want the same", first, second)
		}
		if third == first {
			t.Errorf("third file landed in cell %s, want a fresh cell", third)
		}

		cellID, _ := strconv.ParseInt(first, 10, 64)
		var cell model.Cell
		testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
			var err error
			cell, err = ts.storage.CellByID(tx, cellID)
			return err
		})
		if !cell.Full {
			t.Errorf("cell %d full = false, want true after %d objects", cellID, p.FilesPerCell)
		}

		for i, name := range []string{"one", "two", "three"} {
			if got := ts.readBack(t, "/"+name); !bytes.Equal(got, []byte(name)) {
				t.Errorf("file %d content = %q, want %q", i, got, name)
			}
		}
	})

	t.Run("rejects piles that live on another host", func(t *testing.T) {
		ts := newTestStash(t, nil, 0)
		var p model.Pile
		testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
			var err error
			p, err = ts.storage.CreatePile(tx, "elsewhere", t.TempDir(), 100, 0)
			return err
		})
		ts.setRules(t, []config.PlacementRule{{Piles: []int64{p.ID}}})

		_, err := ts.svc.PutFile(ctx, "/", "far.bin", []byte("x"), false, time.Time{})
		if !errors.Is(err, model.ErrInvalidArgument) {
			t.Fatalf("PutFile() error = %v, want ErrInvalidArgument", err)
		}

		dirents, err := ts.svc.Ls(ctx, "/")
		if err != nil {
			t.Fatalf("Ls() error = %v", err)
		}
		if len(dirents) != 0 {
			t.Errorf("Ls(/) = %+v, want empty after failed put", dirents)
		}
	})

	t.Run("uploads a chunk sequence for a pool", func(t *testing.T) {
		ts := newTestStash(t, []config.PlacementRule{{RemotePools: []string{"pool-a"}}}, 0)
		ts.mustAddCredential(t, "pool-a", "alice@example.com")

		content := []byte("remote bound")
		f, err := ts.svc.PutFile(ctx, "/", "r.bin", content, false, time.Time{})
		if err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}
		if ts.transfer.Len() != 1 {
			t.Errorf("stored objects = %d, want 1", ts.transfer.Len())
		}

		bindings := ts.mustBindings(t, f.ID)
		if len(bindings) != 1 || bindings[0].Domain != model.DomainRemote {
			t.Fatalf("bindings = %+v, want one remote binding", bindings)
		}
		seqID, err := strconv.ParseInt(bindings[0].Locator, 10, 64)
		if err != nil {
			t.Fatalf("remote locator %q is not a sequence id", bindings[0].Locator)
		}

		var seq model.Sequence
		var blob model.Blob
		testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
			var err error
			seq, err = ts.remote.SequenceByID(tx, seqID)
			if err != nil {
				return err
			}
			blob, err = ts.remote.BlobByLocator(tx, seq.Locators[0])
			return err
		})
		if seq.Cipher != model.CipherAES128GCM {
			t.Errorf("Cipher = %q, want %q", seq.Cipher, model.CipherAES128GCM)
		}
		if len(seq.Locators) != 1 {
			t.Fatalf("Locators = %v, want one", seq.Locators)
		}
		wantSize := chunkenc.GCMWireLength(chunkenc.ConcealSize(int64(len(content))))
		if blob.Size != wantSize {
			t.Errorf("blob size = %d, want %d", blob.Size, wantSize)
		}

		if got := ts.readBack(t, "/r.bin"); !bytes.Equal(got, content) {
			t.Errorf("content = %q, want %q", got, content)
		}
	})

	t.Run("splits large content into bounded chunks", func(t *testing.T) {
		ts := newTestStash(t, []config.PlacementRule{{RemotePools: []string{"pool-a"}}}, 0)
		ts.mustAddCredential(t, "pool-a", "alice@example.com")

		content := fillContent(600 * 1024)
		if _, err := ts.svc.PutFile(ctx, "/", "big.bin", content, false, time.Time{}); err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}

		// 600 KiB through a 256 KiB chunk cap is at least three chunks.
		if ts.transfer.Len() < 3 {
			t.Errorf("stored objects = %d, want >= 3", ts.transfer.Len())
		}
		if got := ts.readBack(t, "/big.bin"); !bytes.Equal(got, content) {
			t.Errorf("round trip of %d bytes failed", len(content))
		}
	})

	t.Run("rotates to the next credential when quota runs out", func(t *testing.T) {
		// Quota fits one maximal wire chunk but never two, so the second
		// chunk always exhausts whichever credential went first.
		quota := chunkenc.GCMWireLength(int64(testSplit.MaxSize))
		ts := newTestStash(t, []config.PlacementRule{{RemotePools: []string{"pool-a"}}}, quota)
		ts.mustAddCredential(t, "pool-a", "alice@example.com")
		ts.mustAddCredential(t, "pool-a", "toby@example.com")

		content := fillContent(300 * 1024)
		if _, err := ts.svc.PutFile(ctx, "/", "big.bin", content, false, time.Time{}); err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}
		if got := ts.readBack(t, "/big.bin"); !bytes.Equal(got, content) {
			t.Errorf("round trip of %d bytes failed", len(content))
		}

		var creds []model.Credential
		testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
			var err error
			creds, err = ts.creds.ByPool(tx, "pool-a")
			return err
		})
		exhausted := 0
		for _, c := range creds {
			if c.QuotaExhaustedAt != nil {
				exhausted++
			}
		}
		if exhausted != 1 {
			t.Errorf("exhausted credentials = %d, want 1", exhausted)
		}
	})

	t.Run("fails once every credential is exhausted", func(t *testing.T) {
		ts := newTestStash(t, []config.PlacementRule{{RemotePools: []string{"pool-a"}}}, 8)
		cred := ts.mustAddCredential(t, "pool-a", "alice@example.com")

		_, err := ts.svc.PutFile(ctx, "/", "r.bin", []byte("too big for quota"), false, time.Time{})
		if !errors.Is(err, model.ErrQuotaExhausted) {
			t.Fatalf("PutFile() error = %v, want ErrQuotaExhausted", err)
		}

		// The mark survives the failed put.
		var creds []model.Credential
		testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
			var err error
			creds, err = ts.creds.ByPool(tx, "pool-a")
			return err
		})
		if len(creds) != 1 || creds[0].ID != cred.ID || creds[0].QuotaExhaustedAt == nil {
			t.Errorf("credential = %+v, want %d marked exhausted", creds, cred.ID)
		}

		dirents, err := ts.svc.Ls(ctx, "/")
		if err != nil {
			t.Fatalf("Ls() error = %v", err)
		}
		if len(dirents) != 0 {
			t.Errorf("Ls(/) = %+v, want empty after failed put", dirents)
		}
	})

	t.Run("fails when the pool has no credentials", func(t *testing.T) {
		ts := newTestStash(t, []config.PlacementRule{{RemotePools: []string{"pool-a"}}}, 0)

		_, err := ts.svc.PutFile(ctx, "/", "r.bin", []byte("x"), false, time.Time{})
		if !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("PutFile() error = %v, want ErrNotFound", err)
		}
		if ts.transfer.Len() != 0 {
			t.Errorf("stored objects = %d, want 0", ts.transfer.Len())
		}
	})

	t.Run("stores one copy per desired domain", func(t *testing.T) {
		ts := newTestStash(t, nil, 0)
		p := ts.mustCreatePile(t, 100, 0)
		ts.mustAddCredential(t, "pool-a", "alice@example.com")
		ts.setRules(t, []config.PlacementRule{{
			Inline:      true,
			Piles:       []int64{p.ID},
			RemotePools: []string{"pool-a"},
		}})

		content := []byte("everywhere at once")
		f, err := ts.svc.PutFile(ctx, "/", "all.bin", content, false, time.Time{})
		if err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}

		bindings := ts.mustBindings(t, f.ID)
		domains := make([]model.Domain, 0, len(bindings))
		for _, b := range bindings {
			domains = append(domains, b.Domain)
		}
		want := []model.Domain{model.DomainPile, model.DomainInline, model.DomainRemote}
		if len(domains) != len(want) {
			t.Fatalf("domains = %v, want %v", domains, want)
		}
		for i := range want {
			if domains[i] != want[i] {
				t.Fatalf("domains = %v, want %v", domains, want)
			}
		}

		if got := ts.readBack(t, "/all.bin"); !bytes.Equal(got, content) {
			t.Errorf("content = %q, want %q", got, content)
		}
	})

	t.Run("conceals empty content as pure padding", func(t *testing.T) {
		ts := newTestStash(t, []config.PlacementRule{{RemotePools: []string{"pool-a"}}}, 0)
		ts.mustAddCredential(t, "pool-a", "alice@example.com")

		f, err := ts.svc.PutFile(ctx, "/", "empty.bin", nil, false, time.Time{})
		if err != nil {
			t.Fatalf("PutFile() error = %v", err)
		}
		if f.Size != 0 {
			t.Errorf("Size = %d, want 0", f.Size)
		}
		if ts.transfer.Len() != 1 {
			t.Errorf("stored objects = %d, want 1", ts.transfer.Len())
		}

		if got := ts.readBack(t, "/empty.bin"); len(got) != 0 {
			t.Errorf("content = %q, want empty", got)
		}
	})
}

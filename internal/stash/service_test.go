package stash_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"dstash/internal/chunkenc"
	"dstash/internal/codec"
	"dstash/internal/config"
	"dstash/internal/credential"
	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/pile"
	"dstash/internal/placement"
	"dstash/internal/remote"
	"dstash/internal/stash"
	"dstash/internal/storage"
	"dstash/internal/testutil"
	"dstash/internal/transfer"
	"dstash/internal/tree"
)

const testHostname = "test"

// testSplit keeps chunks small so multi-chunk paths are cheap to hit.
var testSplit = chunkenc.SplitParams{MinSize: 64 * 1024, MaxSize: 256 * 1024}

// testStash wires a Service onto an in-memory database, a memory
// transfer and a temp-dir pile store with freshly generated keys.
type testStash struct {
	db       *database.DB
	svc      *stash.Service
	transfer *transfer.MemoryTransfer
	tree     *tree.Store
	storage  *storage.Store
	remote   *remote.Store
	creds    *credential.Store
	cells    *pile.DiskStore
	dctx     stash.DecryptionContext
	clock    *testutil.StubClock
}

func newTestStash(t *testing.T, rules []config.PlacementRule, quota int64) *testStash {
	t.Helper()

	db := testutil.NewTestDB(t)
	clock := testutil.FixedClock()
	birth := model.Birth{Version: 1, Hostname: testHostname}

	keyDir := t.TempDir()
	keys := pile.NewKeys(config.PileConfig{
		RecipientPath: filepath.Join(keyDir, "pile.pub"),
		IdentityPath:  filepath.Join(keyDir, "pile.key"),
	})
	if err := keys.Setup("stash-test"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	dctx, err := keys.Unlock("stash-test")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	policy, err := placement.NewRulePolicy(config.PlacementConfig{Rules: rules})
	if err != nil {
		t.Fatalf("NewRulePolicy() error = %v", err)
	}

	ts := &testStash{
		db:       db,
		transfer: transfer.NewMemoryTransfer(quota),
		tree:     tree.NewStore(clock, birth),
		storage:  storage.NewStore(clock),
		remote:   remote.NewStore(clock),
		creds:    credential.NewStore(),
		cells:    pile.NewDiskStore(keys, codec.CompressionZstd),
		dctx:     dctx,
		clock:    clock,
	}
	ts.svc = stash.NewService(db, ts.tree, ts.storage, ts.remote, ts.creds, policy,
		ts.transfer, ts.cells, testSplit, stash.NewNopLogger(), clock, birth)
	return ts
}

// setRules swaps the placement policy by rebuilding the service around
// the same stores. Needed when a rule must name a pile id that does not
// exist until the test creates it.
func (ts *testStash) setRules(t *testing.T, rules []config.PlacementRule) {
	t.Helper()

	policy, err := placement.NewRulePolicy(config.PlacementConfig{Rules: rules})
	if err != nil {
		t.Fatalf("NewRulePolicy() error = %v", err)
	}
	ts.svc = stash.NewService(ts.db, ts.tree, ts.storage, ts.remote, ts.creds, policy,
		ts.transfer, ts.cells, testSplit, stash.NewNopLogger(), ts.clock,
		model.Birth{Version: 1, Hostname: testHostname})
}

// mustCreatePile registers a pile on this host backed by a temp dir and
// initializes its manifest.
func (ts *testStash) mustCreatePile(t *testing.T, filesPerCell int64, ratio float64) model.Pile {
	t.Helper()

	var p model.Pile
	testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
		var err error
		p, err = ts.storage.CreatePile(tx, testHostname, t.TempDir(), filesPerCell, ratio)
		return err
	})
	if err := ts.cells.Init(&p); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return p
}

func (ts *testStash) mustAddCredential(t *testing.T, pool, owner string) model.Credential {
	t.Helper()

	var c model.Credential
	testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
		var err error
		c, err = ts.creds.Add(tx, pool, owner)
		return err
	})
	return c
}

// readBack fetches a file's content through the service, unlocked.
func (ts *testStash) readBack(t *testing.T, path string) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := ts.svc.GetFileContent(context.Background(), path, &buf, ts.dctx); err != nil {
		t.Fatalf("GetFileContent(%q) error = %v", path, err)
	}
	return buf.Bytes()
}

// mustBindings lists a file's bindings in read-preference order.
func (ts *testStash) mustBindings(t *testing.T, fileID int64) []model.Binding {
	t.Helper()

	var bindings []model.Binding
	testutil.MustTx(t, ts.db, func(tx *database.Tx) error {
		var err error
		bindings, err = ts.storage.BindingsForFile(tx, fileID)
		return err
	})
	return bindings
}

func inlineRules() []config.PlacementRule {
	return []config.PlacementRule{{Inline: true}}
}

// fillContent returns deterministic filler bytes for round trips.
func fillContent(n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte(i*131 + i>>9 + 7)
	}
	return content
}

// Package app wires the engine together from configuration and fronts
// it for the CLI. One App serves one command invocation: mutating
// commands journal themselves in the operations table, and Close stamps
// the outcome on the journal entry.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"dstash/internal/chunkenc"
	"dstash/internal/codec"
	"dstash/internal/config"
	"dstash/internal/credential"
	"dstash/internal/database"
	"dstash/internal/journal"
	"dstash/internal/model"
	"dstash/internal/pile"
	"dstash/internal/placement"
	"dstash/internal/remote"
	"dstash/internal/stash"
	"dstash/internal/storage"
	"dstash/internal/transfer"
	"dstash/internal/tree"
)

// App is the application layer between the CLI and the stash service.
// It constructs all dependencies from config, exposes high-level
// operations that accept raw paths, and manages the DB lifecycle and
// the operation journal on Close.
type App struct {
	cfg     *config.Config
	db      *database.DB
	keys    *pile.Keys
	cells   stash.CellStore
	storage *storage.Store
	remote  *remote.Store
	creds   *credential.Store
	journal *journal.Store
	service *stash.Service
	logger  stash.Logger
	clock   stash.Clock
	birth   model.Birth
	op      *Operation
	dctx    stash.DecryptionContext
	logFile *os.File
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Put", "Rm"). The caller
// must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	db, err := database.NewFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.MigrationStatus(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema not ready (run `dstash db migrate`): %w", err)
	}

	tr, err := transfer.NewFromConfig(ctx, cfg.Transfer)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating transfer: %w", err)
	}

	keys := pile.NewKeys(cfg.Pile)
	compression := cfg.Pile.Compression
	if compression == "" {
		compression = "zstd"
	}
	comp, err := codec.ParseCompression(compression)
	if err != nil {
		db.Close()
		return nil, err
	}
	cells := pile.NewDiskStore(keys, comp)

	policy, err := placement.NewRulePolicy(cfg.Placement)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("building placement policy: %w", err)
	}

	opID := stash.UUIDGenerator{}.New()
	logger, logFile, err := newLogger(cfg.Log, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	clock := stash.RealClock{}
	birth := stash.DefaultBirth()
	split := chunkenc.SplitParams{
		MinSize:    uint(cfg.Chunk.MinSize),
		MaxSize:    uint(cfg.Chunk.MaxSize),
		Polynomial: cfg.Chunk.Polynomial,
	}

	treeStore := tree.NewStore(clock, birth)
	storageStore := storage.NewStore(clock)
	remoteStore := remote.NewStore(clock)
	credStore := credential.NewStore()
	adapter := &slogAdapter{l: logger}

	svc := stash.NewService(
		db, treeStore, storageStore, remoteStore, credStore,
		policy, tr, cells, split, adapter, clock, birth,
	)

	a := &App{
		cfg:     cfg,
		db:      db,
		keys:    keys,
		cells:   cells,
		storage: storageStore,
		remote:  remoteStore,
		creds:   credStore,
		journal: journal.NewStore(clock),
		service: svc,
		logger:  adapter,
		clock:   clock,
		birth:   birth,
		op:      NewOperation(operation),
		logFile: logFile,
	}

	if err := a.seedCredentials(ctx); err != nil {
		a.db.Close()
		a.logFile.Close()
		return nil, fmt.Errorf("seeding credentials: %w", err)
	}

	return a, nil
}

// seedCredentials registers config-declared accounts that the database
// does not know yet. Already-registered pairs are left alone.
func (a *App) seedCredentials(ctx context.Context) error {
	if len(a.cfg.Credentials) == 0 {
		return nil
	}
	return a.db.InTx(ctx, func(tx *database.Tx) error {
		for _, seed := range a.cfg.Credentials {
			_, err := a.creds.Add(tx, seed.Pool, seed.Owner)
			if errors.Is(err, model.ErrAlreadyExists) {
				continue
			}
			if err != nil {
				return err
			}
			a.logger.Info("credential seeded", "pool", seed.Pool, "owner", seed.Owner)
		}
		return nil
	})
}

// beginOperation journals the start of a mutating command. The first
// call wins; later calls within the same invocation are no-ops.
func (a *App) beginOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	return a.db.InTx(ctx, func(tx *database.Tx) error {
		op, err := a.journal.Begin(tx, a.op.Operation, a.op.Parameters)
		if err != nil {
			return err
		}
		a.op.ID = op.ID
		return nil
	})
}

// fail marks the journal entry as failed and passes err through, so
// call sites can return through it.
func (a *App) fail(err error) error {
	if err != nil {
		a.op.Status = journal.StatusError
	}
	return err
}

// Unlock decrypts the pile identity with the passphrase, enabling pile
// reads for the rest of this invocation.
func (a *App) Unlock(passphrase string) error {
	dctx, err := a.keys.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking pile identity: %w", err)
	}
	a.dctx = dctx
	return nil
}

// KeysConfigured reports whether both pile key files exist.
func (a *App) KeysConfigured() bool {
	return a.keys.IsConfigured()
}

// InitKeys generates the pile key pair protected by the passphrase.
// Existing keys are never overwritten.
func (a *App) InitKeys(passphrase string) error {
	if a.keys.IsConfigured() {
		return fmt.Errorf("%w: pile keys already exist", model.ErrAlreadyExists)
	}
	if err := a.keys.Setup(passphrase); err != nil {
		return err
	}
	a.logger.Info("pile keys generated",
		"recipient", a.cfg.Pile.RecipientPath, "identity", a.cfg.Pile.IdentityPath)
	return nil
}

// Put stores the local file at src under the stash path dest.
// Executability and mtime are taken from the source file.
func (a *App) Put(ctx context.Context, src, dest string) (model.File, error) {
	dir, base, err := stash.SplitPath(dest)
	if err != nil {
		return model.File{}, err
	}
	if err := a.beginOperation(ctx, dest); err != nil {
		return model.File{}, a.fail(err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return model.File{}, a.fail(fmt.Errorf("reading source: %w", err))
	}
	if !info.Mode().IsRegular() {
		return model.File{}, a.fail(fmt.Errorf("%w: %q is not a regular file", model.ErrInvalidArgument, src))
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return model.File{}, a.fail(fmt.Errorf("reading source: %w", err))
	}

	executable := info.Mode().Perm()&0111 != 0
	f, err := a.service.PutFile(ctx, dir, base, content, executable, info.ModTime())
	return f, a.fail(err)
}

// Get writes the content of the file at path to w. Pile copies are only
// readable after Unlock.
func (a *App) Get(ctx context.Context, path string, w io.Writer) error {
	return a.service.GetFileContent(ctx, path, w, a.dctx)
}

// Mkdir creates a directory at path.
func (a *App) Mkdir(ctx context.Context, path string) (model.Directory, error) {
	if err := a.beginOperation(ctx, path); err != nil {
		return model.Directory{}, a.fail(err)
	}
	d, err := a.service.Mkdir(ctx, path)
	return d, a.fail(err)
}

// Symlink creates a symlink at path pointing at target.
func (a *App) Symlink(ctx context.Context, target, path string) (model.Symlink, error) {
	if err := a.beginOperation(ctx, path); err != nil {
		return model.Symlink{}, a.fail(err)
	}
	l, err := a.service.Symlink(ctx, target, path)
	return l, a.fail(err)
}

// Ln links the entity at existing under a second path.
func (a *App) Ln(ctx context.Context, existing, path string) (model.NodeRef, error) {
	if err := a.beginOperation(ctx, path); err != nil {
		return model.NodeRef{}, a.fail(err)
	}
	ref, err := a.service.Ln(ctx, existing, path)
	return ref, a.fail(err)
}

// Rm unlinks the dirent at path.
func (a *App) Rm(ctx context.Context, path string) error {
	if err := a.beginOperation(ctx, path); err != nil {
		return a.fail(err)
	}
	return a.fail(a.service.Rm(ctx, path))
}

// Ls lists the directory at path.
func (a *App) Ls(ctx context.Context, path string) ([]model.Dirent, error) {
	return a.service.Ls(ctx, path)
}

// Info inspects the entity at path without following a final symlink.
func (a *App) Info(ctx context.Context, path string) (stash.NodeInfo, error) {
	return a.service.Info(ctx, path)
}

// History returns the most recent journal entries, newest first.
func (a *App) History(ctx context.Context, limit int) ([]model.Operation, error) {
	var ops []model.Operation
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		ops, err = a.journal.Recent(tx, limit)
		return err
	})
	return ops, err
}

// AddCredential registers a remote account under a pool.
func (a *App) AddCredential(ctx context.Context, pool, owner string) (model.Credential, error) {
	if err := a.beginOperation(ctx, pool+"/"+owner); err != nil {
		return model.Credential{}, a.fail(err)
	}
	var c model.Credential
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		c, err = a.creds.Add(tx, pool, owner)
		return err
	})
	return c, a.fail(err)
}

// Credentials lists the accounts registered under a pool.
func (a *App) Credentials(ctx context.Context, pool string) ([]model.Credential, error) {
	var creds []model.Credential
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		creds, err = a.creds.ByPool(tx, pool)
		return err
	})
	return creds, err
}

// MarkCredentialExhausted records a quota denial for the credential now.
func (a *App) MarkCredentialExhausted(ctx context.Context, id int64) error {
	if err := a.beginOperation(ctx, fmt.Sprintf("credential %d", id)); err != nil {
		return a.fail(err)
	}
	return a.fail(a.db.InTx(ctx, func(tx *database.Tx) error {
		return a.creds.MarkExhausted(tx, id, a.clock.Now())
	}))
}

// ClearCredentialExhausted forgets a recorded quota denial.
func (a *App) ClearCredentialExhausted(ctx context.Context, id int64) error {
	if err := a.beginOperation(ctx, fmt.Sprintf("credential %d", id)); err != nil {
		return a.fail(err)
	}
	return a.fail(a.db.InTx(ctx, func(tx *database.Tx) error {
		return a.creds.ClearExhausted(tx, id)
	}))
}

// CreatePile registers a pile rooted at root on this host and prepares
// its on-disk directory.
func (a *App) CreatePile(ctx context.Context, root string, filesPerCell int64, fullnessCheckRatio float64) (model.Pile, error) {
	if err := a.beginOperation(ctx, root); err != nil {
		return model.Pile{}, a.fail(err)
	}
	var p model.Pile
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		p, err = a.storage.CreatePile(tx, a.birth.Hostname, root, filesPerCell, fullnessCheckRatio)
		return err
	})
	if err != nil {
		return model.Pile{}, a.fail(err)
	}
	if err := a.cells.Init(&p); err != nil {
		return p, a.fail(fmt.Errorf("pile %d registered but not initialized on disk: %w", p.ID, err))
	}
	return p, nil
}

// Piles lists every registered pile.
func (a *App) Piles(ctx context.Context) ([]model.Pile, error) {
	var piles []model.Pile
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		piles, err = a.storage.ListPiles(tx)
		return err
	})
	return piles, err
}

// Cells lists the cells of a pile.
func (a *App) Cells(ctx context.Context, pileID int64) ([]model.Cell, error) {
	var cells []model.Cell
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		cells, err = a.storage.CellsByPile(tx, pileID)
		return err
	})
	return cells, err
}

// RegisterBlob records an already-uploaded remote object.
func (a *App) RegisterBlob(ctx context.Context, nb model.NewBlob) (model.Blob, error) {
	if err := a.beginOperation(ctx, nb.Locator); err != nil {
		return model.Blob{}, a.fail(err)
	}
	var b model.Blob
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		b, err = a.remote.RegisterBlob(tx, nb)
		return err
	})
	return b, a.fail(err)
}

// DeleteBlob removes a blob record that no sequence references.
func (a *App) DeleteBlob(ctx context.Context, locator string) error {
	if err := a.beginOperation(ctx, locator); err != nil {
		return a.fail(err)
	}
	return a.fail(a.db.InTx(ctx, func(tx *database.Tx) error {
		return a.remote.DeleteBlob(tx, locator)
	}))
}

// BlobInfo loads a blob record and the ids of the sequences using it.
func (a *App) BlobInfo(ctx context.Context, locator string) (model.Blob, []int64, error) {
	var (
		b    model.Blob
		seqs []int64
	)
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		b, err = a.remote.BlobByLocator(tx, locator)
		if err != nil {
			return err
		}
		seqs, err = a.remote.SequencesUsingBlob(tx, locator)
		return err
	})
	if err != nil {
		return model.Blob{}, nil, err
	}
	return b, seqs, nil
}

// CreateSequence records an ordered chunk list as one remote
// representation. Every locator must already be registered.
func (a *App) CreateSequence(ctx context.Context, cipher model.Cipher, key []byte, locators []string) (model.Sequence, error) {
	if err := a.beginOperation(ctx, fmt.Sprintf("%d chunks", len(locators))); err != nil {
		return model.Sequence{}, a.fail(err)
	}
	var seq model.Sequence
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		seq, err = a.remote.CreateSequence(tx, cipher, key, locators)
		return err
	})
	return seq, a.fail(err)
}

// DeleteSequence removes a sequence no storage binding references.
func (a *App) DeleteSequence(ctx context.Context, id int64) error {
	if err := a.beginOperation(ctx, fmt.Sprintf("sequence %d", id)); err != nil {
		return a.fail(err)
	}
	return a.fail(a.db.InTx(ctx, func(tx *database.Tx) error {
		return a.remote.DeleteSequence(tx, id)
	}))
}

// SequenceInfo loads a sequence with its chunk locators.
func (a *App) SequenceInfo(ctx context.Context, id int64) (model.Sequence, error) {
	var seq model.Sequence
	err := a.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		seq, err = a.remote.SequenceByID(tx, id)
		return err
	})
	return seq, err
}

// Close finalizes the journal entry for mutating commands and releases
// all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		err := a.db.InTx(context.Background(), func(tx *database.Tx) error {
			return a.journal.Finish(tx, a.op.ID, a.op.Status)
		})
		if err != nil {
			firstErr = fmt.Errorf("finishing operation %d: %w", a.op.ID, err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

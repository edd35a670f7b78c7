package stash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"

	"github.com/zeebo/blake3"

	"dstash/internal/chunkenc"
	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/tree"
)

// errBindingUnavailable marks a binding that cannot be read from this
// process rather than one that failed: a pile on another host, a locked
// identity, an archive item. The read loop skips these quietly.
var errBindingUnavailable = errors.New("binding unavailable")

// GetFileContent resolves path to a file, reads its content from the
// first usable binding in preference order and writes it to w. Content
// is verified against the file's size and BLAKE3 digest before a single
// byte reaches w. dctx unlocks pile reads and may be nil, in which case
// pile bindings are skipped.
func (s *Service) GetFileContent(ctx context.Context, path string, w io.Writer, dctx DecryptionContext) error {
	var (
		f        model.File
		bindings []model.Binding
	)
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		ref, err := s.tree.ResolveFollow(tx, tree.RootID, path)
		if err != nil {
			return err
		}
		if ref.Kind != model.KindFile {
			return fmt.Errorf("%w: %q is a %s, not a file", model.ErrInvalidArgument, path, ref.Kind)
		}
		f, err = s.tree.FileByID(tx, ref.ID)
		if err != nil {
			return err
		}
		bindings, err = s.storage.BindingsForFile(tx, f.ID)
		return err
	})
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		return fmt.Errorf("%w: file %d has no storage bindings", model.ErrNotFound, f.ID)
	}

	var lastErr error
	for _, b := range bindings {
		content, err := s.contentFromBinding(ctx, f, b, dctx)
		if errors.Is(err, errBindingUnavailable) {
			s.logger.Debug("binding skipped", "file_id", f.ID, "domain", b.Domain, "locator", b.Locator, "reason", err)
			continue
		}
		if err == nil {
			err = verifyContent(f, content)
		}
		if err != nil {
			s.logger.Warn("binding read failed", "file_id", f.ID, "domain", b.Domain, "locator", b.Locator, "error", err)
			lastErr = err
			continue
		}
		if _, err := w.Write(content); err != nil {
			return fmt.Errorf("writing content: %w", err)
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("file %d: every usable binding failed: %w", f.ID, lastErr)
	}
	return fmt.Errorf("%w: content of file %d is not reachable from this host", model.ErrNotFound, f.ID)
}

func (s *Service) contentFromBinding(ctx context.Context, f model.File, b model.Binding, dctx DecryptionContext) ([]byte, error) {
	switch b.Domain {
	case model.DomainInline:
		id, err := parseLocator(b)
		if err != nil {
			return nil, err
		}
		var content []byte
		err = s.db.InTx(ctx, func(tx *database.Tx) error {
			var err error
			content, err = s.storage.GetInline(tx, id)
			return err
		})
		return content, err
	case model.DomainPile:
		id, err := parseLocator(b)
		if err != nil {
			return nil, err
		}
		return s.readPile(ctx, f, id, dctx)
	case model.DomainRemote:
		id, err := parseLocator(b)
		if err != nil {
			return nil, err
		}
		return s.readRemote(ctx, f, id)
	case model.DomainArchive:
		return nil, fmt.Errorf("%w: archive retrieval is not implemented", errBindingUnavailable)
	default:
		return nil, fmt.Errorf("%w: unknown storage domain %q", model.ErrInvalidArgument, b.Domain)
	}
}

// readPile loads the cell object for f. The pile must be on this host
// and dctx must hold the unlocked identity.
func (s *Service) readPile(ctx context.Context, f model.File, cellID int64, dctx DecryptionContext) ([]byte, error) {
	if dctx == nil {
		return nil, fmt.Errorf("%w: pile identity is locked", errBindingUnavailable)
	}

	var (
		cell model.Cell
		p    model.Pile
	)
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		cell, err = s.storage.CellByID(tx, cellID)
		if err != nil {
			return err
		}
		p, err = s.storage.PileByID(tx, cell.PileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p.Hostname != s.birth.Hostname {
		return nil, fmt.Errorf("%w: pile %d lives on %q", errBindingUnavailable, p.ID, p.Hostname)
	}

	return s.cells.Get(&p, cell.ID, f.ID, f.Size, dctx)
}

// readRemote fetches and decrypts the chunk sequence, then truncates the
// concealment padding off the tail.
func (s *Service) readRemote(ctx context.Context, f model.File, seqID int64) ([]byte, error) {
	var (
		seq   model.Sequence
		blobs map[string]model.Blob
	)
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		seq, err = s.remote.SequenceByID(tx, seqID)
		if err != nil {
			return err
		}
		blobs = make(map[string]model.Blob, len(seq.Locators))
		for _, loc := range seq.Locators {
			b, err := s.remote.BlobByLocator(tx, loc)
			if err != nil {
				return err
			}
			blobs[loc] = b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var padded bytes.Buffer
	firstBlock := uint64(0)
	for i, loc := range seq.Locators {
		blob := blobs[loc]

		var wireBuf bytes.Buffer
		if err := s.transfer.Get(ctx, loc, &wireBuf); err != nil {
			return nil, fmt.Errorf("fetching chunk %d (%s): %w", i, loc, err)
		}
		wire := wireBuf.Bytes()
		if int64(len(wire)) != blob.Size {
			return nil, fmt.Errorf("%w: chunk %q is %d bytes, registered as %d",
				model.ErrIntegrity, loc, len(wire), blob.Size)
		}
		if crc32.Checksum(wire, castagnoli) != blob.CRC32C {
			return nil, fmt.Errorf("%w: chunk %q failed its CRC-32C check", model.ErrIntegrity, loc)
		}

		var plain []byte
		switch seq.Cipher {
		case model.CipherAES128GCM:
			plain, err = chunkenc.DecryptGCM(seq.Key, firstBlock, wire)
			firstBlock += chunkenc.WireBlocks(int64(len(wire)))
		case model.CipherAES128CTR:
			plain, err = chunkenc.ApplyCTR(seq.Key, uint64(i), wire)
		default:
			return nil, fmt.Errorf("%w: unknown cipher %q", model.ErrInvalidArgument, seq.Cipher)
		}
		if err != nil {
			return nil, fmt.Errorf("decrypting chunk %d (%s): %w", i, loc, err)
		}
		padded.Write(plain)
	}

	if int64(padded.Len()) < f.Size {
		return nil, fmt.Errorf("%w: sequence %d yields %d bytes, file %d needs %d",
			model.ErrIntegrity, seqID, padded.Len(), f.ID, f.Size)
	}
	return padded.Bytes()[:f.Size], nil
}

func verifyContent(f model.File, content []byte) error {
	if int64(len(content)) != f.Size {
		return fmt.Errorf("%w: got %d bytes, file size is %d", model.ErrIntegrity, len(content), f.Size)
	}
	if f.B3Sum != nil {
		sum := blake3.Sum256(content)
		if !bytes.Equal(sum[:], f.B3Sum) {
			return fmt.Errorf("%w: BLAKE3 digest mismatch", model.ErrIntegrity)
		}
	}
	return nil
}

func parseLocator(b model.Binding) (int64, error) {
	id, err := strconv.ParseInt(b.Locator, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s locator %q is not an id", model.ErrIntegrity, b.Domain, b.Locator)
	}
	return id, nil
}

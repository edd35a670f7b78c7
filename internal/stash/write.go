package stash

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rand"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"time"

	"github.com/zeebo/blake3"

	"dstash/internal/chunkenc"
	"dstash/internal/credential"
	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/placement"
	"dstash/internal/tree"
)

// Remote chunk checksums use CRC-32C, which the object services report.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type pileTarget struct {
	pile model.Pile
	cell model.Cell
}

type uploadedBlob struct {
	locator string
	credID  int64
	md5     [16]byte
	crc32c  uint32
	size    int64
}

type poolUpload struct {
	pool  string
	key   []byte
	blobs []uploadedBlob
}

// PutFile stores content as a new file linked at dirPath/basename. The
// placement policy decides which domains receive a copy; every desired
// domain must succeed or the whole operation fails.
//
// Strategy: slow work stays outside the transactions. A first
// transaction creates the file row and reserves pile cells, then cell
// objects are written and chunk sequences uploaded, and a second
// transaction links the file and records every binding. If a late step
// fails, the file row and any stored objects are orphaned but invisible;
// nothing appears in the tree before the final commit.
func (s *Service) PutFile(ctx context.Context, dirPath, basename string, content []byte, executable bool, mtime time.Time) (model.File, error) {
	if err := tree.ValidateBasename(basename); err != nil {
		return model.File{}, err
	}
	full := joinPath(dirPath, basename)

	desire, err := s.policy.NewFileDesire(placement.FileInfo{
		Path:       full,
		Size:       int64(len(content)),
		Mtime:      mtime,
		Executable: executable,
	})
	if err != nil {
		return model.File{}, fmt.Errorf("placing %s: %w", full, err)
	}
	if desire.Empty() {
		return model.File{}, fmt.Errorf("%w: placement for %s names no storage", model.ErrInvalidArgument, full)
	}

	sum := blake3.Sum256(content)

	var (
		f              model.File
		parentID       int64
		pileTargets    []pileTarget
		poolCandidates = make(map[string][]model.Credential)
	)
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		parentID, err = s.resolveDir(tx, dirPath)
		if err != nil {
			return err
		}

		// Fail on a taken basename before any content is stored.
		if _, err := s.tree.Lookup(tx, parentID, basename); err == nil {
			return fmt.Errorf("%w: dirent %q in dir %d", model.ErrAlreadyExists, basename, parentID)
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		f, err = s.tree.CreateFile(tx, model.NewFile{
			Mtime:      mtime,
			Size:       int64(len(content)),
			Executable: executable,
			B3Sum:      sum[:],
		})
		if err != nil {
			return err
		}

		for _, pileID := range desire.Piles {
			p, err := s.storage.PileByID(tx, pileID)
			if err != nil {
				return err
			}
			if p.Hostname != s.birth.Hostname {
				return fmt.Errorf("%w: pile %d lives on %q, this host is %q",
					model.ErrInvalidArgument, p.ID, p.Hostname, s.birth.Hostname)
			}
			cell, err := s.storage.OpenCellFor(tx, p.ID)
			if err != nil {
				return err
			}
			pileTargets = append(pileTargets, pileTarget{pile: p, cell: cell})
		}

		for _, pool := range desire.RemotePools {
			cands, err := s.creds.ByPool(tx, pool)
			if err != nil {
				return err
			}
			if len(cands) == 0 {
				return fmt.Errorf("%w: credential pool %q is empty", model.ErrNotFound, pool)
			}
			poolCandidates[pool] = cands
		}
		return nil
	})
	if err != nil {
		return model.File{}, err
	}

	for _, t := range pileTargets {
		if err := s.cells.Put(&t.pile, t.cell.ID, f.ID, content); err != nil {
			return model.File{}, fmt.Errorf("writing to pile %d: %w", t.pile.ID, err)
		}
		s.logger.Debug("cell object written", "pile_id", t.pile.ID, "cell_id", t.cell.ID, "file_id", f.ID)
	}

	var uploads []poolUpload
	if len(desire.RemotePools) > 0 {
		chunks, err := s.chunkForUpload(content)
		if err != nil {
			return model.File{}, err
		}
		for _, pool := range desire.RemotePools {
			key, err := chunkenc.NewKey()
			if err != nil {
				return model.File{}, err
			}
			wires, err := encryptChunks(key, chunks)
			if err != nil {
				return model.File{}, err
			}
			blobs, err := s.uploadSequence(ctx, pool, poolCandidates[pool], wires)
			if err != nil {
				return model.File{}, err
			}
			s.logger.Debug("chunk sequence uploaded", "pool", pool, "chunks", len(blobs), "file_id", f.ID)
			uploads = append(uploads, poolUpload{pool: pool, key: key, blobs: blobs})
		}
	}

	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		if err := s.tree.Link(tx, parentID, basename, model.FileRef(f.ID)); err != nil {
			return err
		}

		if desire.Inline {
			id, err := s.storage.PutInline(tx, content)
			if err != nil {
				return err
			}
			if err := s.storage.Bind(tx, f.ID, model.DomainInline, strconv.FormatInt(id, 10)); err != nil {
				return err
			}
		}

		for _, t := range pileTargets {
			locator := strconv.FormatInt(t.cell.ID, 10)
			if err := s.storage.Bind(tx, f.ID, model.DomainPile, locator); err != nil {
				return err
			}
			if err := s.maybeMarkCellFull(tx, t.pile, t.cell); err != nil {
				return err
			}
		}

		for _, up := range uploads {
			locators := make([]string, 0, len(up.blobs))
			for _, b := range up.blobs {
				if _, err := s.remote.RegisterBlob(tx, model.NewBlob{
					Locator:      b.locator,
					CredentialID: b.credID,
					MD5:          b.md5,
					CRC32C:       b.crc32c,
					Size:         b.size,
				}); err != nil {
					return err
				}
				locators = append(locators, b.locator)
			}
			seq, err := s.remote.CreateSequence(tx, model.CipherAES128GCM, up.key, locators)
			if err != nil {
				return err
			}
			if err := s.storage.Bind(tx, f.ID, model.DomainRemote, strconv.FormatInt(seq.ID, 10)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.File{}, fmt.Errorf("recording %s: %w", full, err)
	}

	s.logger.Info("file stored", "path", full, "file_id", f.ID, "bytes", f.Size)
	return f, nil
}

// chunkForUpload splits content on content-defined boundaries and pads
// the stream with random bytes out to its concealed size, so registered
// wire lengths reveal only a coarse bound on the true length. Padding
// never grows a chunk past the chunker's maximum.
func (s *Service) chunkForUpload(content []byte) ([][]byte, error) {
	chunks, err := chunkenc.Split(content, s.split)
	if err != nil {
		return nil, err
	}

	pad := chunkenc.ConcealSize(int64(len(content))) - int64(len(content))
	if pad == 0 {
		return chunks, nil
	}
	padding := make([]byte, pad)
	if _, err := rand.Read(padding); err != nil {
		return nil, fmt.Errorf("generating padding: %w", err)
	}

	maxSize := int64(s.split.WithDefaults().MaxSize)
	if len(chunks) > 0 {
		last := len(chunks) - 1
		if room := maxSize - int64(len(chunks[last])); room > 0 {
			take := min(room, int64(len(padding)))
			chunks[last] = append(chunks[last], padding[:take]...)
			padding = padding[take:]
		}
	}
	for len(padding) > 0 {
		take := min(maxSize, int64(len(padding)))
		chunks = append(chunks, padding[:take])
		padding = padding[take:]
	}
	return chunks, nil
}

// encryptChunks seals each chunk under key. Block numbers continue
// across chunks, so every block in the stream gets a distinct nonce.
func encryptChunks(key []byte, chunks [][]byte) ([][]byte, error) {
	wires := make([][]byte, 0, len(chunks))
	firstBlock := uint64(0)
	for i, chunk := range chunks {
		wire, err := chunkenc.EncryptGCM(key, firstBlock, chunk)
		if err != nil {
			return nil, fmt.Errorf("encrypting chunk %d: %w", i, err)
		}
		firstBlock += chunkenc.WireBlocks(int64(len(wire)))
		wires = append(wires, wire)
	}
	return wires, nil
}

// uploadSequence pushes every wire chunk through the transfer backend,
// rotating to the next credential when one runs out of quota. Chunks
// already uploaded under an earlier credential stay valid.
func (s *Service) uploadSequence(ctx context.Context, pool string, candidates []model.Credential, wires [][]byte) ([]uploadedBlob, error) {
	cred, err := credential.Select(candidates)
	if err != nil {
		return nil, fmt.Errorf("selecting credential in pool %q: %w", pool, err)
	}

	blobs := make([]uploadedBlob, 0, len(wires))
	for i := 0; i < len(wires); {
		wire := wires[i]
		locator, err := s.transfer.Put(ctx, cred.Owner, bytes.NewReader(wire), int64(len(wire)))
		if errors.Is(err, model.ErrQuotaExhausted) {
			s.logger.Warn("credential quota exhausted", "pool", pool, "owner", cred.Owner)
			at := s.clock.Now().UTC()
			exhaustedID := cred.ID
			if txErr := s.db.InTx(ctx, func(tx *database.Tx) error {
				return s.creds.MarkExhausted(tx, exhaustedID, at)
			}); txErr != nil {
				return nil, txErr
			}
			candidates = dropCredential(candidates, exhaustedID)
			cred, err = credential.Select(candidates)
			if err != nil {
				return nil, fmt.Errorf("%w: pool %q has no credentials left", model.ErrQuotaExhausted, pool)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("uploading chunk %d: %w", i, err)
		}
		blobs = append(blobs, uploadedBlob{
			locator: locator,
			credID:  cred.ID,
			md5:     md5.Sum(wire),
			crc32c:  crc32.Checksum(wire, castagnoli),
			size:    int64(len(wire)),
		})
		i++
	}
	return blobs, nil
}

func dropCredential(creds []model.Credential, id int64) []model.Credential {
	out := make([]model.Credential, 0, len(creds))
	for _, c := range creds {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// maybeMarkCellFull applies the pile's fullness policy after a write.
// Cheap binding counts gate the disk listing: only once the cell's
// bindings reach files_per_cell times the check ratio is the directory
// counted for real. A ratio of 0 disables the check entirely.
func (s *Service) maybeMarkCellFull(tx *database.Tx, p model.Pile, cell model.Cell) error {
	if p.FullnessCheckRatio <= 0 {
		return nil
	}

	bound, err := s.storage.CountBindings(tx, model.DomainPile, strconv.FormatInt(cell.ID, 10))
	if err != nil {
		return err
	}
	if float64(bound) < float64(p.FilesPerCell)*p.FullnessCheckRatio {
		return nil
	}

	count, err := s.cells.CountObjects(&p, cell.ID)
	if err != nil {
		return err
	}
	if count >= p.FilesPerCell {
		if err := s.storage.MarkCellFull(tx, cell.ID); err != nil {
			return err
		}
		s.logger.Info("cell full", "pile_id", p.ID, "cell_id", cell.ID, "objects", count)
	}
	return nil
}

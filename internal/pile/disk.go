package pile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"dstash/internal/codec"
	"dstash/internal/model"
	"dstash/internal/stash"
)

const (
	manifestName    = "manifest.cbor"
	manifestVersion = 1
)

// Manifest identifies a pile directory on disk. It is written once at
// init and checked before every object access, so a pile row pointed at
// the wrong directory fails loudly instead of mixing content.
type Manifest struct {
	Version  int    `cbor:"version"`
	PileID   int64  `cbor:"pile_id"`
	Hostname string `cbor:"hostname"`
}

// DiskStore reads and writes cell object files under pile roots:
//
//	<root>/<pile_id>/
//	  manifest.cbor
//	  <cell_id>/
//	    <file_id>    (framed, age-encrypted content)
//
// Frames pass through the cell frame codec before encryption, so object
// files are opaque without the unlocked identity.
type DiskStore struct {
	enc         stash.Encryptor
	compression codec.Compression
}

var _ stash.CellStore = (*DiskStore)(nil)

// NewDiskStore creates a store that encrypts with enc and compresses
// frames with the given algorithm.
func NewDiskStore(enc stash.Encryptor, compression codec.Compression) *DiskStore {
	return &DiskStore{enc: enc, compression: compression}
}

// Init prepares the on-disk directory for a pile and writes its
// manifest. Calling Init again on an initialized pile verifies the
// existing manifest instead of rewriting it.
func (s *DiskStore) Init(p *model.Pile) error {
	dir := s.pileDir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating pile directory: %w", err)
	}

	manifestPath := filepath.Join(dir, manifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		return s.verifyManifest(p)
	}

	data, err := cbor.Marshal(Manifest{
		Version:  manifestVersion,
		PileID:   p.ID,
		Hostname: p.Hostname,
	})
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeFileAtomic(manifestPath, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Put frames, encrypts and stores content as the object for fileID in
// the given cell. An existing object file is replaced atomically.
func (s *DiskStore) Put(p *model.Pile, cellID, fileID int64, content []byte) error {
	if err := s.verifyManifest(p); err != nil {
		return err
	}

	frame, err := codec.EncodeFrame(content, s.compression)
	if err != nil {
		return fmt.Errorf("framing content: %w", err)
	}

	cellDir := s.cellDir(p, cellID)
	if err := os.MkdirAll(cellDir, 0755); err != nil {
		return fmt.Errorf("creating cell directory: %w", err)
	}

	var encrypted bytes.Buffer
	if err := s.enc.Encrypt(bytes.NewReader(frame), &encrypted); err != nil {
		return fmt.Errorf("encrypting object: %w", err)
	}

	destPath := filepath.Join(cellDir, strconv.FormatInt(fileID, 10))
	if err := writeFileAtomic(destPath, &encrypted, int64(encrypted.Len())); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// Get reads the object for fileID in the given cell, decrypts it with
// the unlocked identity and returns the deframed content. size is the
// expected content length; a frame that decodes to anything else is
// reported as corruption.
func (s *DiskStore) Get(p *model.Pile, cellID, fileID, size int64, dctx stash.DecryptionContext) ([]byte, error) {
	if err := s.verifyManifest(p); err != nil {
		return nil, err
	}

	srcPath := filepath.Join(s.cellDir(p, cellID), strconv.FormatInt(fileID, 10))
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: pile %d cell %d object %d", model.ErrNotFound, p.ID, cellID, fileID)
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}
	defer f.Close()

	var frame bytes.Buffer
	if err := dctx.Decrypt(f, &frame); err != nil {
		return nil, fmt.Errorf("decrypting object %d/%d/%d: %w", p.ID, cellID, fileID, err)
	}

	content, err := codec.DecodeFrame(frame.Bytes(), int(size))
	if err != nil {
		return nil, fmt.Errorf("object %d/%d/%d: %w", p.ID, cellID, fileID, err)
	}
	return content, nil
}

// Delete removes the object for fileID in the given cell.
func (s *DiskStore) Delete(p *model.Pile, cellID, fileID int64) error {
	if err := s.verifyManifest(p); err != nil {
		return err
	}

	objectPath := filepath.Join(s.cellDir(p, cellID), strconv.FormatInt(fileID, 10))
	if err := os.Remove(objectPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: pile %d cell %d object %d", model.ErrNotFound, p.ID, cellID, fileID)
		}
		return fmt.Errorf("removing object: %w", err)
	}
	return nil
}

// CountObjects reports how many object files the cell holds on disk.
// A cell directory that does not exist yet counts as empty.
func (s *DiskStore) CountObjects(p *model.Pile, cellID int64) (int64, error) {
	entries, err := os.ReadDir(s.cellDir(p, cellID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing cell directory: %w", err)
	}

	var count int64
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		count++
	}
	return count, nil
}

func (s *DiskStore) pileDir(p *model.Pile) string {
	return filepath.Join(p.Root, strconv.FormatInt(p.ID, 10))
}

func (s *DiskStore) cellDir(p *model.Pile, cellID int64) string {
	return filepath.Join(s.pileDir(p), strconv.FormatInt(cellID, 10))
}

// verifyManifest checks that the directory named by the pile row was
// initialized for exactly that pile.
func (s *DiskStore) verifyManifest(p *model.Pile) error {
	data, err := os.ReadFile(filepath.Join(s.pileDir(p), manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: pile %d not initialized at %s", model.ErrNotFound, p.ID, s.pileDir(p))
		}
		return fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: pile %d manifest unreadable: %v", model.ErrIntegrity, p.ID, err)
	}
	if m.Version != manifestVersion {
		return fmt.Errorf("%w: pile %d manifest version %d, want %d", model.ErrIntegrity, p.ID, m.Version, manifestVersion)
	}
	if m.PileID != p.ID {
		return fmt.Errorf("%w: directory %s belongs to pile %d, not pile %d", model.ErrIntegrity, s.pileDir(p), m.PileID, p.ID)
	}
	if m.Hostname != p.Hostname {
		return fmt.Errorf("%w: pile %d manifest hostname %q, want %q", model.ErrIntegrity, p.ID, m.Hostname, p.Hostname)
	}
	return nil
}

// writeFileAtomic writes data to destPath using a temp file and rename,
// so readers never observe a partial object.
func writeFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

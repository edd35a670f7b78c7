package model

import "time"

// Birth records where and when an entity was created.
type Birth struct {
	Time     time.Time
	Version  int    // engine version that created the entity
	Hostname string // host that created the entity
}

// Directory is an interior node of the tree.
type Directory struct {
	ID    int64
	Mtime time.Time
	Birth Birth

	// ParentID caches the parent side of the directory's single incoming
	// dirent. 0 means unparented. The root points at itself, so `..` at
	// the root resolves to the root and the root can never become a child.
	ParentID int64

	// Derived counters, kept exact by the dirent operations.
	DirentCount   int64 // outgoing dirents
	ChildDirCount int64 // outgoing dirents whose child is a directory
}

// File is a leaf whose content lives elsewhere (see Binding).
type File struct {
	ID         int64
	Mtime      time.Time
	Birth      Birth
	Size       int64 // immutable after creation
	Executable bool  // immutable after creation
	B3Sum      []byte // BLAKE3 hash of the full content, nil when unknown
}

// Symlink holds an uninterpreted target path.
type Symlink struct {
	ID     int64
	Mtime  time.Time
	Birth  Birth
	Target string
}

// NewFile carries caller-supplied fields for file creation.
// A zero Mtime means "now".
type NewFile struct {
	Mtime      time.Time
	Size       int64
	Executable bool
	B3Sum      []byte
}

// Dirent links a basename in a parent directory to a child entity.
type Dirent struct {
	ParentID int64
	Basename string
	Child    NodeRef
}

// Blob is one stored object in the remote service, identified by the
// locator the service assigned at upload time.
type Blob struct {
	Locator      string
	CredentialID int64 // owning credential, 0 when unowned
	MD5          [16]byte
	CRC32C       uint32
	Size         int64
	CreatedAt    time.Time
	LastProbed   *time.Time
}

// NewBlob carries caller-supplied fields for blob registration.
type NewBlob struct {
	Locator      string
	CredentialID int64
	MD5          [16]byte
	CRC32C       uint32
	Size         int64
}

// Sequence is an ordered list of encrypted chunks forming one remote
// representation of a file's content.
type Sequence struct {
	ID        int64
	Cipher    Cipher
	Key       []byte // length fixed by the cipher
	Locators  []string
	CreatedAt time.Time
}

// Credential identifies one account usable for remote uploads.
type Credential struct {
	ID               int64
	Pool             string // account pool the placement policy names
	Owner            string // account identity at the remote service
	QuotaExhaustedAt *time.Time
}

// Binding places one representation of a file's content in a domain.
type Binding struct {
	FileID    int64
	Domain    Domain
	Locator   string
	CreatedAt time.Time
}

// Pile is a local-disk storage root holding fixed-capacity cells.
type Pile struct {
	ID                 int64
	Hostname           string
	Root               string
	FilesPerCell       int64
	FullnessCheckRatio float64
}

// Cell is one directory inside a pile. New content goes to a non-full cell.
type Cell struct {
	ID     int64
	PileID int64
	Full   bool
}

// Operation is one journal entry for a mutating CLI command.
// FinishedAt is nil while the operation runs; a row that stays running
// marks an interrupted invocation.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

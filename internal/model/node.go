package model

import "fmt"

// NodeKind discriminates the three entity kinds a dirent may point at.
type NodeKind uint8

const (
	KindDir NodeKind = iota + 1
	KindFile
	KindSymlink
)

func (k NodeKind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NodeRef identifies one tree entity. A ref carries exactly one kind, so
// the "points at exactly one of dir, file, symlink" rule holds by
// construction; use DirRef, FileRef or SymlinkRef.
type NodeRef struct {
	Kind NodeKind
	ID   int64
}

func DirRef(id int64) NodeRef     { return NodeRef{Kind: KindDir, ID: id} }
func FileRef(id int64) NodeRef    { return NodeRef{Kind: KindFile, ID: id} }
func SymlinkRef(id int64) NodeRef { return NodeRef{Kind: KindSymlink, ID: id} }

// IsZero reports whether the ref is unset.
func (r NodeRef) IsZero() bool { return r.Kind == 0 && r.ID == 0 }

func (r NodeRef) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

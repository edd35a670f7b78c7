package model

import "fmt"

// Domain names a storage backend class a file's content may live in.
type Domain string

const (
	DomainPile    Domain = "pile"    // local disk pile cell
	DomainInline  Domain = "inline"  // compressed bytes in the durable store
	DomainRemote  Domain = "remote"  // encrypted chunk sequence in the object service
	DomainArchive Domain = "archive" // item/path in the archival service
)

// Domains lists every domain in read-preference order, fastest first.
// Binding listings follow this order.
var Domains = []Domain{DomainPile, DomainInline, DomainRemote, DomainArchive}

func (d Domain) Valid() bool {
	switch d {
	case DomainPile, DomainInline, DomainRemote, DomainArchive:
		return true
	default:
		return false
	}
}

// Rank returns the domain's position in read-preference order.
func (d Domain) Rank() int {
	for i, x := range Domains {
		if d == x {
			return i
		}
	}
	return len(Domains)
}

// ParseDomain converts a stored domain name back to a Domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown storage domain %q", ErrInvalidArgument, s)
	}
	return d, nil
}

package stash

import (
	"context"
	"io"
)

// Transfer moves chunk bytes between this host and the remote object
// service. Implementations assign the locators; the engine treats them
// as opaque strings.
type Transfer interface {
	// Put uploads size bytes from r under the given credential owner and
	// returns the locator the service assigned. A quota denial surfaces
	// as model.ErrQuotaExhausted so the caller can rotate credentials.
	Put(ctx context.Context, credOwner string, r io.Reader, size int64) (string, error)

	// Get downloads the object at locator and writes it to w.
	Get(ctx context.Context, locator string, w io.Writer) error

	// Delete removes the object at locator.
	Delete(ctx context.Context, locator string) error

	// Validate verifies that the backend is reachable and configured.
	Validate(ctx context.Context) error
}

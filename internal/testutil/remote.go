package testutil

import (
	"testing"

	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/remote"
)

// NewRemoteStore builds a remote registry on a fixed stub clock.
func NewRemoteStore() (*remote.Store, *StubClock) {
	clock := FixedClock()
	return remote.NewStore(clock), clock
}

// MustRegisterBlob registers a blob with filler checksums, failing the
// test on error.
func MustRegisterBlob(t *testing.T, db *database.DB, rs *remote.Store, locator string, size int64) model.Blob {
	t.Helper()

	var b model.Blob
	MustTx(t, db, func(tx *database.Tx) error {
		var err error
		b, err = rs.RegisterBlob(tx, model.NewBlob{
			Locator: locator,
			MD5:     [16]byte{0xd4, 0x1d, 0x8c, 0xd9},
			CRC32C:  0x22620404,
			Size:    size,
		})
		return err
	})
	return b
}

// MustCreateSequence registers a sequence over the given locators with a
// zeroed GCM key, failing the test on error.
func MustCreateSequence(t *testing.T, db *database.DB, rs *remote.Store, locators ...string) model.Sequence {
	t.Helper()

	var seq model.Sequence
	MustTx(t, db, func(tx *database.Tx) error {
		var err error
		seq, err = rs.CreateSequence(tx, model.CipherAES128GCM, make([]byte, 16), locators)
		return err
	})
	return seq
}

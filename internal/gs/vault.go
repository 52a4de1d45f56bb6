package gs

import (
	"context"
	"io"
)

// Vault stores file content addressed by its SHA-256 checksum.
// Operations stream through io.Reader/io.Writer so large files never need to
// fit in memory.
type Vault interface {
	// PutContent stores content under checksum. Storing an existing checksum
	// again is safe. size is the number of bytes that will be read from r, or
	// negative when the length is not known up front.
	PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error

	// GetContent writes the content stored under checksum to w.
	// Missing content fails with ErrNotFound.
	GetContent(ctx context.Context, checksum string, w io.Writer) error

	HasContent(ctx context.Context, checksum string) (bool, error)

	// ValidateSetup verifies that the backend is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// Encryptor protects vault content at rest. Encryption needs only the public
// key; decryption needs the passphrase-protected identity unlocked once per
// server process.
type Encryptor interface {
	// Setup generates a key pair, storing the public key in plaintext and the
	// private key encrypted with passphrase.
	Setup(passphrase string) error

	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext.
	Unlock(passphrase string) (DecryptionContext, error)

	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity in memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// StagingArea holds upload bytes in temporary storage until they are
// complete and verified.
type StagingArea interface {
	// Stage copies r into temporary storage while hashing it. At most limit
	// bytes are accepted when limit > 0. The returned content must be
	// released by the caller on every path.
	Stage(r io.Reader, limit int64) (StagedContent, error)

	// Used returns the number of bytes currently held.
	Used() int64
}

// StagedContent is one upload held by a StagingArea.
type StagedContent interface {
	Checksum() string
	Size() int64
	Open() (io.ReadCloser, error)

	// Release removes the staged bytes. Calling it more than once is safe.
	Release() error
}

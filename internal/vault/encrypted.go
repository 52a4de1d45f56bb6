package vault

import (
	"context"
	"errors"
	"fmt"
	"io"

	"groupsync/internal/gs"
)

// EncryptedVault encrypts content before it reaches the inner vault.
// Checksums stay those of the plaintext, so dedup and event references are
// unaffected. Reads need a DecryptionContext from Unlock.
type EncryptedVault struct {
	inner     gs.Vault
	encryptor gs.Encryptor
	dc        gs.DecryptionContext
}

var _ gs.Vault = (*EncryptedVault)(nil)

// NewEncryptedVault wraps inner. dc may be nil, in which case GetContent
// fails until Unlock succeeds.
func NewEncryptedVault(inner gs.Vault, encryptor gs.Encryptor, dc gs.DecryptionContext) *EncryptedVault {
	return &EncryptedVault{inner: inner, encryptor: encryptor, dc: dc}
}

// Unlock opens the private key with passphrase for later reads.
func (v *EncryptedVault) Unlock(passphrase string) error {
	dc, err := v.encryptor.Unlock(passphrase)
	if err != nil {
		return err
	}
	v.dc = dc
	return nil
}

// PutContent streams r through the encryptor into the inner vault. The
// ciphertext length is not known ahead, so the plaintext size is checked here.
func (v *EncryptedVault) PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error {
	has, err := v.inner.HasContent(ctx, checksum)
	if err != nil {
		return err
	}
	if has {
		n, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		return checkSize(size, n)
	}

	cr := &countingReader{r: r}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(v.encryptor.Encrypt(cr, pw))
	}()

	err = v.inner.PutContent(ctx, checksum, pr, -1)
	pr.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("storing encrypted content: %w", err)
	}
	return checkSize(size, cr.n)
}

func (v *EncryptedVault) GetContent(ctx context.Context, checksum string, w io.Writer) error {
	if v.dc == nil {
		return fmt.Errorf("vault is locked")
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := v.dc.Decrypt(pr, w)
		pr.CloseWithError(err)
		done <- err
	}()

	err := v.inner.GetContent(ctx, checksum, pw)
	pw.CloseWithError(err)
	decErr := <-done

	switch {
	case errors.Is(err, gs.ErrNotFound):
		return err
	case decErr != nil:
		return fmt.Errorf("decrypting %s: %w", checksum, decErr)
	}
	return err
}

func (v *EncryptedVault) HasContent(ctx context.Context, checksum string) (bool, error) {
	return v.inner.HasContent(ctx, checksum)
}

func (v *EncryptedVault) ValidateSetup(ctx context.Context) error {
	if !v.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys are not set up; run 'gs server keys init'")
	}
	return v.inner.ValidateSetup(ctx)
}

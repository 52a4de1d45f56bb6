package vault

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"groupsync/internal/config"
	"groupsync/internal/gs"
)

// MinioVault stores content in a bucket on a MinIO or other S3-compatible
// server, as objects "content/<checksum>".
type MinioVault struct {
	client *minio.Client
	bucket string
}

var _ gs.Vault = (*MinioVault)(nil)

// NewMinioVault connects to the endpoint in cfg. The bucket is created on
// first use by ValidateSetup.
func NewMinioVault(cfg config.VaultConfig) (*MinioVault, error) {
	if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
		return nil, fmt.Errorf("minio vault requires minio_endpoint and minio_bucket to be set")
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &MinioVault{client: client, bucket: cfg.MinioBucket}, nil
}

func objectKey(checksum string) string {
	return path.Join("content", checksum)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// PutContent uploads r. A negative size streams with multipart upload.
func (v *MinioVault) PutContent(ctx context.Context, checksum string, r io.Reader, size int64) error {
	if err := validChecksum(checksum); err != nil {
		return err
	}

	cr := &countingReader{r: r}
	_, err := v.client.PutObject(ctx, v.bucket, objectKey(checksum), cr, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", checksum, err)
	}
	return checkSize(size, cr.n)
}

func (v *MinioVault) GetContent(ctx context.Context, checksum string, w io.Writer) error {
	obj, err := v.client.GetObject(ctx, v.bucket, objectKey(checksum), minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("getting %s: %w", checksum, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing key before anything is written.
	if _, err := obj.Stat(); err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("%w: content %s", gs.ErrNotFound, checksum)
		}
		return fmt.Errorf("getting %s: %w", checksum, err)
	}

	if _, err := io.Copy(w, obj); err != nil {
		return fmt.Errorf("reading %s: %w", checksum, err)
	}
	return nil
}

func (v *MinioVault) HasContent(ctx context.Context, checksum string) (bool, error) {
	_, err := v.client.StatObject(ctx, v.bucket, objectKey(checksum), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", checksum, err)
	}
	return true, nil
}

// ValidateSetup creates the bucket when it does not exist yet.
func (v *MinioVault) ValidateSetup(ctx context.Context) error {
	exists, err := v.client.BucketExists(ctx, v.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", v.bucket, err)
	}
	if exists {
		return nil
	}
	if err := v.client.MakeBucket(ctx, v.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", v.bucket, err)
	}
	return nil
}

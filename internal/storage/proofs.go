package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/RaikyD/reptile-orders-service/internal/logger"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const MaxProofSize = 5 << 20

var ErrDisabled = errors.New("proof storage disabled")

// ProofStore keeps customer payment-proof images and returns a reference URL.
type ProofStore interface {
	SaveProof(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioStore struct {
	client  objectPutter
	bucket  string
	baseURL string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStore connects and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		logger.Info("minio bucket created", "bucket", cfg.Bucket)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return newMinioStore(client, cfg.Bucket, scheme+"://"+cfg.Endpoint), nil
}

func newMinioStore(client objectPutter, bucket, baseURL string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *MinioStore) SaveProof(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	if err := checkProof(contentType, size); err != nil {
		return "", err
	}

	key := objectKey(filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("%w: upload proof: %w", domain.ErrStorage, err)
	}

	logger.Info("payment proof stored", "bucket", s.bucket, "key", key, "size", size)
	return s.baseURL + "/" + s.bucket + "/" + url.PathEscape(key), nil
}

func checkProof(contentType string, size int64) error {
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%w: payment proof must be an image, got %q", domain.ErrValidation, contentType)
	}
	if size <= 0 || size > MaxProofSize {
		return fmt.Errorf("%w: payment proof size %d out of range", domain.ErrValidation, size)
	}
	return nil
}

// objectKey keeps the original extension only; names come from customers.
func objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 6 || strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	return "proofs/" + uuid.NewString() + ext
}

// DisabledStore rejects uploads when no object storage is configured.
type DisabledStore struct{}

func (DisabledStore) SaveProof(context.Context, string, string, io.Reader, int64) (string, error) {
	return "", ErrDisabled
}

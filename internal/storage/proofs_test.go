package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket, f.key, f.contentType = bucket, key, opts.ContentType
	f.body, _ = io.ReadAll(r)
	return minio.UploadInfo{Bucket: bucket, Key: key}, nil
}

func TestSaveProof(t *testing.T) {
	fp := &fakePutter{}
	s := newMinioStore(fp, "payment-proofs", "http://minio:9000/")

	img := []byte("\x89PNG....")
	ref, err := s.SaveProof(context.Background(), "Receipt.PNG", "image/png", bytes.NewReader(img), int64(len(img)))
	require.NoError(t, err)

	assert.Equal(t, "payment-proofs", fp.bucket)
	assert.True(t, strings.HasPrefix(fp.key, "proofs/"))
	assert.True(t, strings.HasSuffix(fp.key, ".png"))
	assert.Equal(t, "image/png", fp.contentType)
	assert.Equal(t, img, fp.body)
	assert.True(t, strings.HasPrefix(ref, "http://minio:9000/payment-proofs/proofs"), ref)
}

func TestSaveProofRejectsNonImages(t *testing.T) {
	fp := &fakePutter{}
	s := newMinioStore(fp, "b", "http://minio")

	_, err := s.SaveProof(context.Background(), "x.pdf", "application/pdf", strings.NewReader("pdf"), 3)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.SaveProof(context.Background(), "x.jpg", "image/jpeg", strings.NewReader(""), MaxProofSize+1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, fp.key)
}

func TestSaveProofUploadFailure(t *testing.T) {
	s := newMinioStore(&fakePutter{err: errors.New("503")}, "b", "http://minio")
	_, err := s.SaveProof(context.Background(), "x.jpg", "image/jpeg", strings.NewReader("j"), 1)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestObjectKeyDropsSuspiciousExtensions(t *testing.T) {
	assert.True(t, strings.HasSuffix(objectKey(`C:\Users\me\proof.jpeg`), ".jpeg"))
	assert.NotContains(t, objectKey("proof.verylongext"), ".verylongext")
	assert.NotEqual(t, objectKey("a.jpg"), objectKey("a.jpg"))
}

// Package store provides the durable state layer: the document/tree/chunk
// relational store (postgres.go, document.go, chunk.go, tree.go) and the
// object store for uploaded PDF bytes (blob.go), per spec.md §3 and §6.
package store

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hsn0918/filingtree/internal/config"
)

// BlobStore persists uploaded PDF bytes under upload_dir-prefixed object
// keys (spec.md §3 Document.SourceObjectKey).
type BlobStore struct {
	client     *minio.Client
	bucketName string
	uploadDir  string
}

// NewBlobStore creates a MinIO-backed BlobStore, creating the configured
// bucket if it doesn't already exist.
func NewBlobStore(ctx context.Context, cfg config.MinIOConfig, uploadDir string) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("blobstore: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("blobstore: create bucket: %w", err)
		}
	}

	return &BlobStore{client: client, bucketName: cfg.BucketName, uploadDir: uploadDir}, nil
}

// objectKey derives the object key for a document under the configured
// upload directory prefix.
func (b *BlobStore) objectKey(docID string) string {
	return fmt.Sprintf("%s/%s.pdf", b.uploadDir, docID)
}

// Put uploads a document's PDF bytes and returns the resulting object key.
func (b *BlobStore) Put(ctx context.Context, docID string, reader io.Reader, size int64) (string, error) {
	key := b.objectKey(docID)
	_, err := b.client.PutObject(ctx, b.bucketName, key, reader, size, minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: upload %s: %w", key, err)
	}
	return key, nil
}

// Get downloads the PDF bytes for an object key. The caller must close the
// returned object.
func (b *BlobStore) Get(ctx context.Context, objectKey string) (*minio.Object, error) {
	obj, err := b.client.GetObject(ctx, b.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("blobstore: download %s: %w", objectKey, err)
	}
	return obj, nil
}

// Delete removes the object at objectKey. Used when a document is
// cascade-deleted on force re-ingest.
func (b *BlobStore) Delete(ctx context.Context, objectKey string) error {
	if err := b.client.RemoveObject(ctx, b.bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("blobstore: delete %s: %w", objectKey, err)
	}
	return nil
}


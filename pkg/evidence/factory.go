package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType selects the blob backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// NewBlobStoreFromEnv builds a blob store from environment variables.
//
//   - MOV_STORAGE_TYPE: "fs" (default), "s3", or "gcs"
//   - DATA_DIR: base directory for the filesystem store (default "data")
//
// For S3:
//   - MOV_S3_BUCKET (required)
//   - MOV_S3_REGION or AWS_REGION
//   - MOV_S3_ENDPOINT (optional, MinIO/LocalStack)
//   - MOV_S3_PREFIX (optional)
//
// For GCS:
//   - MOV_GCS_BUCKET (required)
//   - MOV_GCS_PREFIX (optional)
func NewBlobStoreFromEnv(ctx context.Context) (BlobStore, error) {
	storeType := StoreType(os.Getenv("MOV_STORAGE_TYPE"))
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		return newFileStoreFromEnv()
	case StoreTypeS3:
		return newS3StoreFromEnv(ctx)
	case StoreTypeGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported MOV storage type: %s", storeType)
	}
}

func newFileStoreFromEnv() (BlobStore, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	return NewFileStore(filepath.Join(dataDir, "mov"))
}

func newS3StoreFromEnv(ctx context.Context) (BlobStore, error) {
	bucket := os.Getenv("MOV_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("MOV_S3_BUCKET is required for S3 storage")
	}

	region := os.Getenv("MOV_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "ap-southeast-1"
	}

	return NewS3Store(ctx, S3StoreConfig{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("MOV_S3_ENDPOINT"),
		Prefix:   os.Getenv("MOV_S3_PREFIX"),
	})
}

//go:build gcp

package evidence

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (BlobStore, error) {
	bucket := os.Getenv("MOV_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("MOV_GCS_BUCKET is required for GCS storage")
	}

	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("MOV_GCS_PREFIX"),
	})
}

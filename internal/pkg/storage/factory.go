package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// DriverMinIO selects the MinIO backend.
	DriverMinIO = "minio"
	// DriverS3 selects the AWS S3 backend.
	DriverS3 = "s3"
	// DriverGCS selects the Google Cloud Storage backend.
	DriverGCS = "gcs"
)

// ErrUnknownDriver indicates an unsupported storage driver name.
var ErrUnknownDriver = errors.New("storage: unknown driver")

// FactoryOptions groups per-driver configuration.
type FactoryOptions struct {
	MinIO MinIOOptions
	S3    S3Options
	GCS   GCSOptions
}

// NewFromDriver constructs a Storage implementation by driver name.
func NewFromDriver(ctx context.Context, driver string, opts FactoryOptions) (Storage, error) {
	switch strings.ToLower(driver) {
	case DriverMinIO:
		return NewMinIO(opts.MinIO)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverGCS:
		return NewGCS(ctx, opts.GCS)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// Package blob re-exports the snapshot archive abstractions and wires the
// concrete backends behind a single Open entry point.
package blob

import (
	"context"
	"fmt"
	"os"

	"silocore/internal/blob/core"
	fsstore "silocore/internal/infra/blob/fs"
	memorystore "silocore/internal/infra/blob/memory"
	s3store "silocore/internal/infra/blob/s3"
)

type (
	// Driver identifies an archive backend driver.
	Driver = core.Driver
	// PutOptions configures an archive write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the interface for archive backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation isn't supported by a driver.
var ErrUnsupported = core.ErrUnsupported

// Open selects an archive backend using environment variables.
//
//	SILOCORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	SILOCORE_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./archive)
//	(S3 specific variables documented in the s3 backend)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("SILOCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("SILOCORE_ARCHIVE_FS_ROOT")
		return fsstore.New(root)
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

// NewMemory returns an in-memory archive store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem constructs a filesystem-backed archive store rooted at path.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// S3Config re-exports the S3 backend configuration type.
type S3Config = s3store.Config

// NewS3 constructs an S3-backed archive store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }

// NewMockS3ForTests exposes the lightweight in-memory S3 mock for
// cross-package tests.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }

// Package blob re-exports core blob abstractions for stable external imports.
// It is the only package allowed to construct infra-backed stores; everything
// else depends on blob.Store.
package blob

import (
	"chemledger/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// Prober is implemented by stores with a connectivity probe.
	Prober = core.Prober
	// DirMaker is implemented by stores that create directories.
	DirMaker = core.DirMaker
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverWebHDFS is the Hadoop WebHDFS driver.
	DriverWebHDFS = core.DriverWebHDFS
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrNotFound is wrapped by every driver for a missing key.
	ErrNotFound = core.ErrNotFound
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
)

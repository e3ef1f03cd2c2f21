package core

import (
	"context"
	"fmt"
	"io"

	"chemledger/internal/audit"
	"chemledger/internal/blob"
	"chemledger/internal/config"
	"chemledger/internal/infra/persistence/postgres"
	"chemledger/internal/infra/persistence/sqlite"
	"chemledger/internal/recordfile"
	"chemledger/internal/replica"
)

// StorageDriver identifies where the local record table is kept.
type StorageDriver string

const (
	StorageFile     StorageDriver = config.TableFile     // JSON document on local disk
	StorageMemory   StorageDriver = config.TableMemory   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = config.TableSQLite   // embedded sqlite file
	StoragePostgres StorageDriver = config.TablePostgres // PostgreSQL server
)

// OpenTable selects the table backend named by cfg. The returned closer is
// nil for backends holding no resources.
func OpenTable(ctx context.Context, cfg config.TableConfig) (recordfile.Table, io.Closer, error) {
	name := (&config.Config{Table: cfg}).TableName()
	switch StorageDriver(cfg.Driver) {
	case StorageFile, "":
		return recordfile.NewFile(cfg.Path), nil, nil
	case StorageMemory:
		return recordfile.NewMemory(name), nil, nil
	case StorageSQLite:
		st, err := sqlite.NewStore(cfg.SQLitePath, name)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case StoragePostgres:
		st, err := postgres.NewStore(ctx, cfg.PostgresDSN, name)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// RemoteFactory returns the client factory for the configured remote store,
// or nil when no remote store is configured. Keys are resolved by the replica
// manager, so the store itself is rooted at "/".
func RemoteFactory(cfg *config.Config) (replica.ClientFactory, error) {
	if !cfg.RemoteEnabled() {
		return nil, nil
	}
	timeout, err := cfg.RemoteTimeout()
	if err != nil {
		return nil, err
	}
	var bc blob.Config
	switch cfg.Remote.Driver {
	case config.RemoteS3:
		bc = blob.Config{Driver: blob.DriverS3, S3: blob.S3Config{
			Bucket:    cfg.Remote.S3.Bucket,
			Region:    cfg.Remote.S3.Region,
			Endpoint:  cfg.Remote.S3.Endpoint,
			PathStyle: cfg.Remote.S3.PathStyle,
		}}
	default:
		bc = blob.Config{Driver: blob.DriverWebHDFS, WebHDFS: blob.WebHDFSConfig{
			URL:     cfg.Remote.URL,
			User:    cfg.Remote.User,
			Root:    "/",
			Timeout: timeout,
		}}
	}
	return func(ctx context.Context) (blob.Store, error) {
		return blob.Open(ctx, bc)
	}, nil
}

// Open wires a Service from configuration: the table backend, the fallback
// mirror, the replica manager and the audit log. The mirror directory is
// created here; failing to do so fails Open.
func Open(ctx context.Context, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := newService(opts)

	mirror, err := replica.NewMirror(cfg.Fallback.Dir)
	if err != nil {
		return nil, err
	}
	factory, err := RemoteFactory(cfg)
	if err != nil {
		return nil, err
	}
	replOpts := []replica.Option{
		replica.WithRemoteDir(cfg.RemoteDir()),
		replica.WithLogger(s.logger),
		replica.WithReprobe(cfg.Remote.Reprobe),
	}
	if factory != nil {
		replOpts = append(replOpts, replica.WithClientFactory(factory))
	} else {
		s.logger.Info("remote store not configured; replicating to fallback", "fallback", mirror.Dir())
	}
	s.repl = replica.NewManager(mirror, replOpts...)

	table, closer, err := OpenTable(ctx, cfg.Table)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	s.table = table
	s.audit = audit.New(s.repl, cfg.Audit.Name, audit.WithLogger(s.logger))
	return s, nil
}

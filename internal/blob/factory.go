package blob

import (
	"context"
	"fmt"
)

// Config selects and parameterizes a driver for Open.
type Config struct {
	Driver  Driver
	FSRoot  string // driver=fs
	S3      S3Config
	WebHDFS WebHDFSConfig
}

// Open constructs the store named by cfg.Driver. An empty driver selects the
// filesystem store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		st, err := NewFilesystem(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverWebHDFS:
		return NewWebHDFS(cfg.WebHDFS)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

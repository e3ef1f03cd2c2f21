package blob

import (
	"chemledger/internal/infra/blob/webhdfs"
)

// WebHDFSConfig re-exports the infra WebHDFS configuration type.
type WebHDFSConfig = webhdfs.Config

// NewWebHDFS constructs a store talking to a Hadoop namenode over WebHDFS.
func NewWebHDFS(cfg WebHDFSConfig) (Store, error) {
	st, err := webhdfs.New(cfg)
	if err != nil {
		return nil, err
	}
	return st, nil
}

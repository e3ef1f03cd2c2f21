package blob

import (
	"chemledger/internal/infra/blob/fs"
)

// FilesystemStore is the concrete local directory store. The fallback mirror
// needs its Root and PathFor in addition to the Store surface.
type FilesystemStore = fs.Store

// NewFilesystem constructs a filesystem-backed store rooted at the provided
// path, creating the directory if needed.
func NewFilesystem(root string) (*FilesystemStore, error) {
	return fs.New(root)
}

// Package store - Writes prediction outputs and mirrors them to secondary storage.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tuhinmallick/grounded-sam-replicate/log"
)

// UploadParams is a single object handed to a mirror.
type UploadParams struct {
	// Name is the object key, relative to the mirror root.
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Uploader receives a copy of every written output.
type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// FileUploader mirrors objects into a local directory.
type FileUploader struct {
	Root string
}

// Upload writes params.Data to Root/params.Name.
func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	logger := log.FromContextOrDiscard(ctx).WithGroup("file")
	path := filepath.Join(u.Root, filepath.FromSlash(params.Name))
	logger.Debug("mirroring", "file", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating mirror directory: %w", err)
	}
	return os.WriteFile(path, params.Data, 0o600)
}

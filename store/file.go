package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/tuhinmallick/grounded-sam-replicate/images"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
)

var (
	// ErrInvalidID is returned for request ids that are not a single safe
	// path element.
	ErrInvalidID = errors.New("invalid request id")
	// ErrRequestExists is returned when the directory of a request id is
	// already present.
	ErrRequestExists = errors.New("request directory already exists")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateID accepts ids made of letters, digits, '-' and '_' only, so that
// an id always names a directory directly below the root.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// Writer persists the outputs of one request under a directory named by its id.
type Writer interface {
	// Prepare creates the request directory. It fails with ErrRequestExists
	// if the directory is already present.
	Prepare(ctx context.Context, id string) (string, error)
	// Write encodes img as <name>.png in the request directory and returns its path.
	Write(ctx context.Context, id, name string, img image.Image) (string, error)
	// Remove deletes the request directory and everything in it.
	Remove(ctx context.Context, id string) error
}

var _ Writer = (*FileStore)(nil)

// FileStore writes PNG files under Root, optionally mirroring each one.
type FileStore struct {
	Root string
	// Mirror, when set, receives every file after it is in place.
	Mirror Uploader
}

// NewFileStore returns a store rooted at root.
func NewFileStore(root string, mirror Uploader) *FileStore {
	return &FileStore{Root: root, Mirror: mirror}
}

// Dir returns the directory of request id.
func (s *FileStore) Dir(id string) string {
	return filepath.Join(s.Root, id)
}

// Prepare creates the directory of request id below Root. The root is
// created as needed; the request directory itself must not exist yet.
func (s *FileStore) Prepare(_ context.Context, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return "", fmt.Errorf("creating output root: %w", err)
	}
	dir := s.Dir(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrRequestExists, dir)
		}
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return dir, nil
}

// Write encodes img and moves it into place atomically: the PNG is written to
// a temporary file in the same directory, synced, then renamed. Readers never
// observe a partial file.
//
// Arguments:
//   - ctx: Carries the logger; passed to the mirror.
//   - id: The request id.
//   - name: The output name, without extension.
//   - img: The picture to encode.
//
// Returns:
//   - string: The final path.
//   - error: An error if encoding, writing or mirroring fails.
func (s *FileStore) Write(ctx context.Context, id, name string, img image.Image) (string, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("store")
	if err := ValidateID(id); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := images.EncodePNG(&buf, img); err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}

	dir := s.Dir(id)
	final := filepath.Join(dir, name+".png")
	if err := writeAtomic(dir, final, buf.Bytes()); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	logger.Debug("wrote output", "path", final, "bytes", buf.Len())

	if s.Mirror != nil {
		if err := s.Mirror.Upload(ctx, UploadParams{
			Name:        path.Join(id, name+".png"),
			Data:        buf.Bytes(),
			ContentType: "image/png",
			Metadata:    map[string]string{"request-id": id, "output": name},
		}); err != nil {
			return final, fmt.Errorf("mirroring %s: %w", name, err)
		}
	}
	return final, nil
}

// Remove deletes the directory of request id.
func (s *FileStore) Remove(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return os.RemoveAll(s.Dir(id))
}

func writeAtomic(dir, final string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		cleanup()
		return err
	}
	return nil
}

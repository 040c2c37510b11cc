// Package weights - Provisioning of model checkpoints from a download manifest.
package weights

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds simultaneous downloads.
const DefaultParallelism = 4

// Downloader fetches manifest entries that are not present yet.
type Downloader struct {
	Client      *http.Client
	Parallelism int
}

// Result reports what happened to one manifest entry.
type Result struct {
	Name       string
	Path       string
	Downloaded bool
	Bytes      int64
}

// Missing returns the manifest entries whose files do not exist.
func Missing(m config.Models, files []config.WeightFile) []config.WeightFile {
	return lo.Filter(files, func(f config.WeightFile, _ int) bool {
		_, err := os.Stat(m.Path(f.Path))
		return os.IsNotExist(err)
	})
}

// Download fetches every missing entry of files into the weights directory
// of m. Present files are left untouched.
//
// Arguments:
//   - ctx: Cancels the downloads and carries the logger.
//   - m: Resolves relative paths against its WeightsDir.
//   - files: The manifest.
//
// Returns:
//   - []Result: One result per manifest entry, in manifest order.
//   - error: The first download error.
func (d *Downloader) Download(ctx context.Context, m config.Models, files []config.WeightFile) ([]Result, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("weights")

	results := lo.Map(files, func(f config.WeightFile, _ int) Result {
		return Result{Name: f.Name, Path: m.Path(f.Path)}
	})

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(lo.Ternary(d.Parallelism > 0, d.Parallelism, DefaultParallelism))

	for i, f := range files {
		if _, err := os.Stat(results[i].Path); err == nil {
			logger.Debug("weights present", "name", f.Name, "path", results[i].Path)
			continue
		}

		group.Go(func() error {
			logger.Info("downloading weights", "name", f.Name, "url", f.URL)
			n, err := d.fetch(ctx, f.URL, results[i].Path)
			if err != nil {
				return fmt.Errorf("downloading %s: %w", f.Name, err)
			}
			results[i].Downloaded = true
			results[i].Bytes = n
			logger.Info("downloaded weights", "name", f.Name, "path", results[i].Path, "bytes", n)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (d *Downloader) fetch(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	client := lo.Ternary(d.Client != nil, d.Client, http.DefaultClient)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), path)
}

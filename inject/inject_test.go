package inject

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/inference"
	"github.com/tuhinmallick/grounded-sam-replicate/janitor"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
	"github.com/tuhinmallick/grounded-sam-replicate/profiler"
	"github.com/tuhinmallick/grounded-sam-replicate/store"
	"github.com/tuhinmallick/grounded-sam-replicate/test"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.Root = t.TempDir()
	cfg.Output.MirrorDir = t.TempDir()
	cfg.Janitor.MaxAge = time.Hour
	return &cfg
}

func writePicture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return path
}

func TestPredictorWiring(t *testing.T) {
	cfg := testConfig(t)
	injector := Setup(context.Background(), cfg)
	t.Cleanup(func() { _ = injector.Shutdown() })

	do.OverrideValue[model.Composer](injector, &test.FakeComposer{})

	p := do.MustInvoke[*inference.Predictor](injector)
	paths, err := p.Run(context.Background(), inference.NewRequest(writePicture(t)))
	require.NoError(t, err)
	require.Len(t, paths, 6)

	for _, path := range paths {
		rel, err := filepath.Rel(cfg.Output.Root, path)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(cfg.Output.MirrorDir, rel), "every output is mirrored")
	}

	stats := do.MustInvoke[*profiler.RuntimeProfiler](injector).Snapshot()
	assert.NotEmpty(t, stats.Operations)
}

func TestWriterWithoutMirror(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.MirrorDir = ""
	injector := Setup(context.Background(), cfg)

	w := do.MustInvoke[store.Writer](injector)
	fs, ok := w.(*store.FileStore)
	require.True(t, ok)
	assert.Nil(t, fs.Mirror)
	assert.Equal(t, cfg.Output.Root, fs.Root)
}

func TestWriterWithBucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Bucket = "outputs"
	cfg.Output.Prefix = "grounded-sam"
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	injector := Setup(context.Background(), cfg)

	fs, ok := do.MustInvoke[store.Writer](injector).(*store.FileStore)
	require.True(t, ok)
	s3u, ok := fs.Mirror.(*store.S3Uploader)
	require.True(t, ok)
	assert.Equal(t, "outputs", s3u.Bucket)
	assert.Equal(t, "grounded-sam/x.png", s3u.Key("x.png"))
}

func TestJanitorWiring(t *testing.T) {
	cfg := testConfig(t)
	injector := Setup(context.Background(), cfg)

	j, err := do.Invoke[*janitor.Janitor](injector)
	require.NoError(t, err)
	assert.NotNil(t, j)
}

func TestBadJanitorSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Janitor.Schedule = "sometimes"
	injector := Setup(context.Background(), cfg)

	_, err := do.Invoke[*janitor.Janitor](injector)
	assert.Error(t, err)
}

package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdir(t *testing.T, root, name string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mask.png"), []byte("png"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		maxAge   time.Duration
		wantErr  bool
	}{
		{name: "descriptor", schedule: "@every 1h", maxAge: time.Hour},
		{name: "five fields", schedule: "*/5 * * * *", maxAge: time.Hour},
		{name: "bad schedule", schedule: "whenever", maxAge: time.Hour, wantErr: true},
		{name: "zero age", schedule: "@hourly", maxAge: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(t.TempDir(), tt.schedule, tt.maxAge)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSweepRemovesOnlyStaleRequestDirs(t *testing.T) {
	root := t.TempDir()
	stale := mkdir(t, root, uuid.NewString(), 48*time.Hour)
	fresh := mkdir(t, root, uuid.NewString(), time.Minute)
	foreign := mkdir(t, root, "keep-me", 48*time.Hour)
	file := filepath.Join(root, uuid.NewString())
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(file, time.Now().Add(-48*time.Hour), time.Now().Add(-48*time.Hour)))

	j, err := New(root, "@hourly", 24*time.Hour)
	require.NoError(t, err)

	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, removed)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, foreign)
	assert.FileExists(t, file)
}

func TestSweepMissingRoot(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "absent"), "@hourly", time.Hour)
	require.NoError(t, err)

	removed, err := j.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSweepUsesClock(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, uuid.NewString(), time.Minute)

	j, err := New(root, "@hourly", time.Hour)
	require.NoError(t, err)
	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, removed)
}

func TestStartStop(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, uuid.NewString(), 48*time.Hour)

	j, err := New(root, "@every 1s", time.Hour)
	require.NoError(t, err)
	require.NoError(t, j.Start(context.Background()))
	t.Cleanup(j.Stop)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, j.Shutdown())
	j.Stop()
}

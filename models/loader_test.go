package models

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuhinmallick/grounded-sam-replicate/config"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
)

func writeWeights(t *testing.T, graphYAML string) config.Models {
	t.Helper()
	cfg := config.DefaultConfig().Models
	cfg.WeightsDir = t.TempDir()

	files := map[string]string{
		cfg.Grounding.Config:     graphYAML,
		cfg.Grounding.Checkpoint: "onnx",
		cfg.Grounding.Tokenizer:  "{}",
		cfg.SAM.Encoder:          "onnx",
		cfg.SAM.Decoder:          "onnx",
	}
	for name, content := range files {
		path := cfg.Path(name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return cfg
}

func TestLoadMissingWeights(t *testing.T) {
	cfg := config.DefaultConfig().Models
	cfg.WeightsDir = t.TempDir()

	_, err := Load(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingWeights))
	assert.Contains(t, err.Error(), cfg.Path(cfg.SAM.Decoder))
}

func TestLoadOneMissingFile(t *testing.T) {
	cfg := writeWeights(t, "max_text_len: 256\n")
	require.NoError(t, os.Remove(cfg.Path(cfg.SAM.Encoder)))

	_, err := Load(context.Background(), cfg)
	assert.True(t, errors.Is(err, ErrMissingWeights))
	assert.Contains(t, err.Error(), "sam_vit_h_4b8939_encoder.onnx")
	assert.NotContains(t, err.Error(), "decoder")
}

func TestLoadBadConfig(t *testing.T) {
	for name, content := range map[string]string{
		"unparseable": "image_size: [800,",
		"invalid":     "num_queries: 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := writeWeights(t, content)
			_, err := Load(context.Background(), cfg)
			assert.True(t, errors.Is(err, ErrBadConfig), "%v", err)
		})
	}
}

func TestBindNames(t *testing.T) {
	bound, missing, unexpected := bindNames(
		[]string{"img", "input_ids", "position_ids"},
		[]string{"input_ids", "img", "extra"},
	)
	assert.Equal(t, []string{"img", "input_ids"}, bound)
	assert.Equal(t, []string{"position_ids"}, missing)
	assert.Equal(t, []string{"extra"}, unexpected)

	bound, missing, unexpected = bindNames([]string{"a"}, []string{"a"})
	assert.Equal(t, []string{"a"}, bound)
	assert.Empty(t, missing)
	assert.Empty(t, unexpected)
}

func TestBindWarnsOnMismatch(t *testing.T) {
	orig := graphInfo
	t.Cleanup(func() { graphInfo = orig })
	graphInfo = func(string) ([]string, []string, error) {
		return []string{"image", "unused"}, []string{"image_embeddings"}, nil
	}

	var buf bytes.Buffer
	ctx := log.NewContext(context.Background(), log.New(&buf))

	in, out, report, err := bind(ctx, model.ModelNameSAM, "encoder.onnx",
		[]string{"image", "scale"}, []string{"image_embeddings"})
	require.NoError(t, err)
	assert.Equal(t, []string{"image"}, in)
	assert.Equal(t, []string{"image_embeddings"}, out)
	assert.False(t, report.Clean())
	assert.Equal(t, []string{"scale"}, report.Missing)
	assert.Equal(t, []string{"unused"}, report.Unexpected)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), "graph tensor names do not match")
}

func TestBindUnreadableGraph(t *testing.T) {
	orig := graphInfo
	t.Cleanup(func() { graphInfo = orig })
	graphInfo = func(string) ([]string, []string, error) {
		return nil, nil, errors.New("protobuf parse error")
	}

	_, _, _, err := bind(context.Background(), model.ModelNameSAM, "corrupt.onnx", nil, nil)
	assert.True(t, errors.Is(err, ErrMissingWeights))
}

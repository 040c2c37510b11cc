// Package groundingdino - GroundingDINO open-vocabulary detector over ONNX Runtime.
package groundingdino

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MaskType is the element type the exported graph expects for its attention masks.
type MaskType string

const (
	MaskTypeBool  MaskType = "bool"
	MaskTypeInt64 MaskType = "int64"
)

// Tensor names the exported graph binds.
type Tensor struct {
	Image         string `json:"image"           yaml:"image"`
	InputIDs      string `json:"input_ids"       yaml:"input_ids"`
	AttentionMask string `json:"attention_mask"  yaml:"attention_mask"`
	PositionIDs   string `json:"position_ids"    yaml:"position_ids"`
	TokenTypeIDs  string `json:"token_type_ids"  yaml:"token_type_ids"`
	TextTokenMask string `json:"text_token_mask" yaml:"text_token_mask"`
	Logits        string `json:"logits"          yaml:"logits"`
	Boxes         string `json:"boxes"           yaml:"boxes"`
}

// GraphConfig describes an exported GroundingDINO graph. It plays the role of
// the model config file the checkpoint was trained with.
type GraphConfig struct {
	// ImageSize is the fixed [width, height] of the image input.
	ImageSize [2]int `json:"image_size" yaml:"image_size"`
	// MaxTextLen is the last dimension of the logits output.
	MaxTextLen int `json:"max_text_len" yaml:"max_text_len"`
	// NumQueries is the number of decoder queries.
	NumQueries int        `json:"num_queries" yaml:"num_queries"`
	Mean       [3]float32 `json:"mean"        yaml:"mean"`
	Std        [3]float32 `json:"std"         yaml:"std"`
	MaskType   MaskType   `json:"mask_type"   yaml:"mask_type"`
	Tensors    Tensor     `json:"tensors"     yaml:"tensors"`
}

// DefaultGraphConfig matches the SwinT-OGC export.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		ImageSize:  [2]int{800, 800},
		MaxTextLen: 256,
		NumQueries: 900,
		Mean:       [3]float32{0.485, 0.456, 0.406},
		Std:        [3]float32{0.229, 0.224, 0.225},
		MaskType:   MaskTypeBool,
		Tensors: Tensor{
			Image:         "img",
			InputIDs:      "input_ids",
			AttentionMask: "attention_mask",
			PositionIDs:   "position_ids",
			TokenTypeIDs:  "token_type_ids",
			TextTokenMask: "text_token_mask",
			Logits:        "logits",
			Boxes:         "boxes",
		},
	}
}

// InputNames returns the graph inputs in binding order.
func (c GraphConfig) InputNames() []string {
	t := c.Tensors
	return []string{t.Image, t.InputIDs, t.AttentionMask, t.PositionIDs, t.TokenTypeIDs, t.TextTokenMask}
}

// OutputNames returns the graph outputs in binding order.
func (c GraphConfig) OutputNames() []string {
	return []string{c.Tensors.Logits, c.Tensors.Boxes}
}

// Validate rejects configurations the detector cannot run with.
func (c GraphConfig) Validate() error {
	if c.ImageSize[0] <= 0 || c.ImageSize[1] <= 0 {
		return errors.Errorf("image_size must be positive, got %v", c.ImageSize)
	}
	if c.MaxTextLen <= 2 {
		return errors.Errorf("max_text_len must be greater than 2, got %d", c.MaxTextLen)
	}
	if c.NumQueries <= 0 {
		return errors.Errorf("num_queries must be positive, got %d", c.NumQueries)
	}
	for i, s := range c.Std {
		if s == 0 {
			return errors.Errorf("std[%d] must not be zero", i)
		}
	}
	switch c.MaskType {
	case MaskTypeBool, MaskTypeInt64:
	default:
		return errors.Errorf("unsupported mask_type %q", c.MaskType)
	}
	for _, name := range append(c.InputNames(), c.OutputNames()...) {
		if name == "" {
			return errors.New("every tensor name must be set")
		}
	}
	return nil
}

// LoadGraphConfig parses the YAML file at path over DefaultGraphConfig.
//
// Arguments:
//   - path: The model config file.
//
// Returns:
//   - GraphConfig: The parsed configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadGraphConfig(path string) (GraphConfig, error) {
	cfg := DefaultGraphConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading model config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing model config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "validating model config %s", path)
	}
	return cfg, nil
}

// Package config - Process configuration loaded from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by every host binary.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string  `json:"log_level" yaml:"log_level"`
	Models   Models  `json:"models"    yaml:"models"`
	Output   Output  `json:"output"    yaml:"output"`
	Server   Server  `json:"server"    yaml:"server"`
	Janitor  Janitor `json:"janitor"   yaml:"janitor"`
	Weights  Weights `json:"weights"   yaml:"weights"`
}

// Models locates the checkpoints and selects the compute device.
type Models struct {
	// WeightsDir is the directory relative paths below are resolved against.
	WeightsDir string `json:"weights_dir" yaml:"weights_dir"`
	// Device is auto, cuda, coreml or cpu.
	Device string `json:"device" yaml:"device"`
	// SharedLibraryPath overrides the platform default onnxruntime library.
	SharedLibraryPath string `json:"onnxruntime_lib" yaml:"onnxruntime_lib"`
	// IntraOpThreads is passed to the ORT session options. 0 lets ORT decide.
	IntraOpThreads int       `json:"intra_op_threads" yaml:"intra_op_threads"`
	Grounding      Grounding `json:"grounding"        yaml:"grounding"`
	SAM            SAM       `json:"sam"              yaml:"sam"`
}

// Grounding configures the open-vocabulary detector.
type Grounding struct {
	// Config is the exported graph description (image size, tensor names).
	Config        string  `json:"config"         yaml:"config"`
	Checkpoint    string  `json:"checkpoint"     yaml:"checkpoint"`
	Tokenizer     string  `json:"tokenizer"      yaml:"tokenizer"`
	BoxThreshold  float32 `json:"box_threshold"  yaml:"box_threshold"`
	TextThreshold float32 `json:"text_threshold" yaml:"text_threshold"`
	NMSThreshold  float32 `json:"nms_threshold"  yaml:"nms_threshold"`
}

// SAM configures the segmentation encoder and prompt decoder.
type SAM struct {
	Encoder       string  `json:"encoder"        yaml:"encoder"`
	Decoder       string  `json:"decoder"        yaml:"decoder"`
	MaskThreshold float32 `json:"mask_threshold" yaml:"mask_threshold"`
}

// Output controls where and how prediction artifacts are written.
type Output struct {
	Root string `json:"root" yaml:"root"`
	// CleanupOnFailure removes the request directory when a prediction fails
	// after some files were written.
	CleanupOnFailure bool `json:"cleanup_on_failure" yaml:"cleanup_on_failure"`
	// SerializeInference runs at most one composition at a time.
	SerializeInference bool `json:"serialize_inference" yaml:"serialize_inference"`
	// Bucket, when set, mirrors every written file to S3.
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix"`
	// MirrorDir, when set and Bucket is not, mirrors every written file into
	// a second local directory.
	MirrorDir string `json:"mirror_dir" yaml:"mirror_dir"`
}

// Server configures the HTTP harness.
type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Janitor configures the sweeper for stale request directories.
type Janitor struct {
	Enabled  bool          `json:"enabled"  yaml:"enabled"`
	Schedule string        `json:"schedule" yaml:"schedule"`
	MaxAge   time.Duration `json:"max_age"  yaml:"max_age"`
}

// Weights lists the files provisioned into WeightsDir.
type Weights struct {
	DownloadOnStart bool         `json:"download_on_start" yaml:"download_on_start"`
	Files           []WeightFile `json:"files"             yaml:"files"`
}

// WeightFile is a single downloadable checkpoint.
type WeightFile struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url"  yaml:"url"`
	// Path is relative to Models.WeightsDir unless absolute.
	Path string `json:"path" yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is given.
//
// Returns:
//   - Config: Defaults matching the published Grounded-SAM checkpoints.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Models: Models{
			WeightsDir: "/src/weights",
			Device:     "auto",
			Grounding: Grounding{
				Config:        "GroundingDINO_SwinT_OGC.yaml",
				Checkpoint:    "groundingdino_swint_ogc.onnx",
				Tokenizer:     "bert-base-uncased/tokenizer.json",
				BoxThreshold:  0.3,
				TextThreshold: 0.25,
				NMSThreshold:  0.8,
			},
			SAM: SAM{
				Encoder:       "sam_vit_h_4b8939_encoder.onnx",
				Decoder:       "sam_vit_h_4b8939_decoder.onnx",
				MaskThreshold: 0.0,
			},
		},
		Output: Output{
			Root: "/tmp",
		},
		Server: Server{
			Addr: ":5000",
		},
		Janitor: Janitor{
			Schedule: "@every 1h",
			MaxAge:   24 * time.Hour,
		},
	}
}

// Load reads the YAML file at path over DefaultConfig and then applies
// environment overrides. An empty path skips the file.
//
// Arguments:
//   - path: The YAML file to read, or "".
//
// Returns:
//   - *Config: The merged configuration.
//   - error: An error if the file cannot be read or parsed, or the result is invalid.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Models.WeightsDir = getEnv("WEIGHTS_DIR", c.Models.WeightsDir)
	c.Models.Device = getEnv("DEVICE", c.Models.Device)
	c.Models.SharedLibraryPath = getEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH", c.Models.SharedLibraryPath)
	c.Output.Root = getEnv("OUTPUT_ROOT", c.Output.Root)
	c.Output.Bucket = getEnv("OUTPUT_BUCKET", c.Output.Bucket)
	c.Output.CleanupOnFailure = getEnvBool("CLEANUP_ON_FAILURE", c.Output.CleanupOnFailure)
	c.Server.Addr = getEnv("LISTEN_ADDR", c.Server.Addr)
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch c.Models.Device {
	case "auto", "cuda", "coreml", "cpu":
	default:
		return fmt.Errorf("unsupported device %q: want auto, cuda, coreml or cpu", c.Models.Device)
	}
	if c.Output.Root == "" {
		return fmt.Errorf("output.root is required")
	}
	if c.Models.Grounding.BoxThreshold < 0 || c.Models.Grounding.BoxThreshold > 1 {
		return fmt.Errorf("box_threshold must be within [0, 1], got %f", c.Models.Grounding.BoxThreshold)
	}
	if c.Models.Grounding.TextThreshold < 0 || c.Models.Grounding.TextThreshold > 1 {
		return fmt.Errorf("text_threshold must be within [0, 1], got %f", c.Models.Grounding.TextThreshold)
	}
	if c.Janitor.Enabled && c.Janitor.MaxAge <= 0 {
		return fmt.Errorf("janitor.max_age must be positive when the janitor is enabled")
	}
	for _, f := range c.Weights.Files {
		if f.URL == "" || f.Path == "" {
			return fmt.Errorf("weights file %q needs both url and path", f.Name)
		}
	}
	return nil
}

// Path resolves p against WeightsDir unless it is already absolute.
func (m Models) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.WeightsDir, p)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// Package providers - Inference sessions.
package providers

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tuhinmallick/grounded-sam-replicate/log"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// InitializeEnvironment loads the native onnxruntime library and prepares
// its environment. It is reference counted, so every successful call must be
// paired with DestroyEnvironment.
//
// Arguments:
//   - libPath: The shared library to load, or "" for GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs > 0 {
		envRefs++
		return nil
	}

	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if libPath == "" {
		return fmt.Errorf("no default ONNX Runtime library for this platform, set %s", SharedLibraryEnv)
	}
	// Check if the shared library exists before trying to use it.
	if _, err := os.Stat(libPath); err != nil {
		return fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
	}

	// Point ONNX Runtime to the exact shared library path (overrides default search).
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}
	envRefs = 1
	return nil
}

// DestroyEnvironment releases one reference taken by InitializeEnvironment.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs > 0 {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("error destroying ORT environment: %w", err)
	}
	return nil
}

// SessionConfig controls threading and graph optimisation of a session.
type SessionConfig struct {
	// IntraOpThreads parallelises node execution inside the graph. 0 lets ORT decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelises independent graph nodes. 0 lets ORT decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// GraphOptimizationLevel enables graph rewrites such as fusion and
	// constant folding during load.
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level" yaml:"graph_optimization_level"`
}

// DefaultSessionConfig returns extended graph optimisation with ORT's default threading.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
	}
}

// NewSessionOptions creates the session options for provider, with its
// execution provider appended.
//
// Arguments:
//   - provider: The provider for the session.
//   - cfg: Threading and optimisation settings.
//
// Returns:
//   - *ort.SessionOptions: The options, valid until release is called.
//   - func(): Releases the options and any provider-specific native state.
//   - error: An error if the provider cannot be enabled.
func NewSessionOptions(provider ExecutionProvider, cfg SessionConfig) (*ort.SessionOptions, func(), error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	releasers := []func(){func() { options.Destroy() }}
	release := func() {
		for i := len(releasers) - 1; i >= 0; i-- {
			releasers[i]()
		}
	}
	fail := func(err error) (*ort.SessionOptions, func(), error) {
		release()
		return nil, nil, err
	}

	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return fail(fmt.Errorf("error setting intra-op threads: %w", err))
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		return fail(fmt.Errorf("error setting inter-op threads: %w", err))
	}
	if err := options.SetGraphOptimizationLevel(cfg.GraphOptimizationLevel); err != nil {
		return fail(fmt.Errorf("error setting graph optimization level: %w", err))
	}

	switch provider.Backend() {
	case CPUProviderBackend:
		// The CPU provider is always registered last by ORT itself.
	case CoreMLProviderBackend:
		opts, ok := provider.Options().(CoreMLOptions)
		if !ok {
			return fail(fmt.Errorf("invalid options type for CoreML: %T", provider.Options()))
		}
		if err := options.AppendExecutionProviderCoreML(opts.Flags()); err != nil {
			return fail(fmt.Errorf("error enabling CoreML: %w", err))
		}
	case CUDAProviderBackend:
		opts, ok := provider.Options().(CUDAOptions)
		if !ok {
			return fail(fmt.Errorf("invalid options type for CUDA: %T", provider.Options()))
		}
		cuda, err := opts.ToNativeProviderOptions()
		if err != nil {
			return fail(fmt.Errorf("error converting CUDA options: %w", err))
		}
		releasers = append(releasers, func() { cuda.Destroy() })
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fail(fmt.Errorf("error enabling CUDA: %w", err))
		}
	default:
		return fail(fmt.Errorf("unsupported provider backend: %s", provider.Backend()))
	}

	return options, release, nil
}

// Select resolves a device preference into a usable provider. With
// AutoProviderBackend the platform accelerators are probed in order and CPU
// is the fallback; an explicit accelerator that cannot be enabled is an error.
//
// The ORT environment must already be initialized.
//
// Arguments:
//   - ctx: Carries the logger.
//   - preference: The requested backend.
//   - cfg: The session settings used for probing.
//
// Returns:
//   - ExecutionProvider: The selected provider.
//   - error: An error if an explicitly requested backend is unavailable.
func Select(ctx context.Context, preference ProviderBackend, cfg SessionConfig) (ExecutionProvider, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("providers")

	candidates := []ProviderBackend{preference}
	if preference == AutoProviderBackend {
		candidates = defaultPreference()
	}

	for _, backend := range candidates {
		provider, err := providerFor(backend)
		if err != nil {
			return nil, err
		}
		if backend == CPUProviderBackend {
			logger.Info("selected execution provider", "backend", backend)
			return provider, nil
		}

		_, release, err := NewSessionOptions(provider, cfg)
		if err != nil {
			if preference != AutoProviderBackend {
				return nil, fmt.Errorf("requested backend %s is unavailable: %w", backend, err)
			}
			logger.Info("execution provider unavailable", "backend", backend, "error", err)
			continue
		}
		release()
		logger.Info("selected execution provider", "backend", backend)
		return provider, nil
	}

	return nil, fmt.Errorf("no execution provider available for %s", preference)
}

func providerFor(backend ProviderBackend) (ExecutionProvider, error) {
	switch backend {
	case CPUProviderBackend:
		return NewProvider(CPUOptions{})
	case CUDAProviderBackend:
		return NewProvider(DefaultCUDAOptions())
	case CoreMLProviderBackend:
		return NewProvider(CoreMLOptions{})
	default:
		return nil, fmt.Errorf("no matching provider backend registered: %s", backend)
	}
}

// GraphInfo returns the declared input and output names of an ONNX graph.
func GraphInfo(modelPath string) ([]string, []string, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading graph info of %s: %w", modelPath, err)
	}
	names := func(infos []ort.InputOutputInfo) []string {
		out := make([]string, 0, len(infos))
		for _, info := range infos {
			out = append(out, info.Name)
		}
		return out
	}
	return names(inputs), names(outputs), nil
}

// Session represents a model session from the onnxruntime with the tensor
// names it was bound to.
type Session struct {
	session *ort.DynamicAdvancedSession
	// Inputs and Outputs are the bound names, in graph binding order.
	Inputs  []string
	Outputs []string
}

// NewSessionArgs represents the arguments for creating a new session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The input names to bind.
	Inputs []string
	// The output names to bind.
	Outputs []string
	// Threading and optimisation settings.
	Config SessionConfig
}

// NewSession creates a new ONNX Runtime session on provider.
//
// Order of operations:
//  1. Session options: threading, optimization level, execution provider.
//  2. Session creation: loads the model and binds the tensor names.
//
// Tensors are supplied per Run, so one session serves concurrent callers
// when the execution provider allows it.
//
// Arguments:
//   - provider: The provider for the session.
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The runnable session.
//   - error: An error if the session creation fails.
func NewSession(provider ExecutionProvider, args NewSessionArgs) (*Session, error) {
	if len(args.Inputs) == 0 || len(args.Outputs) == 0 {
		return nil, fmt.Errorf("session for %s needs at least one input and one output", args.ModelPath)
	}

	options, release, err := NewSessionOptions(provider, args.Config)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := ort.NewDynamicAdvancedSession(args.ModelPath, args.Inputs, args.Outputs, options)
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session for %s: %w", args.ModelPath, err)
	}

	return &Session{
		session: session,
		Inputs:  args.Inputs,
		Outputs: args.Outputs,
	}, nil
}

// Run executes the graph. Values are looked up by bound name; extra entries
// are ignored, and a missing bound name is an error.
//
// Arguments:
//   - inputs: Input tensors by name.
//   - outputs: Preallocated output tensors by name.
//
// Returns:
//   - error: An error if a tensor is missing or inference fails.
func (s *Session) Run(inputs, outputs map[string]ort.Value) error {
	in, err := ordered(s.Inputs, inputs, "input")
	if err != nil {
		return err
	}
	out, err := ordered(s.Outputs, outputs, "output")
	if err != nil {
		return err
	}
	if err := s.session.Run(in, out); err != nil {
		return fmt.Errorf("error running ORT session: %w", err)
	}
	return nil
}

func ordered(names []string, values map[string]ort.Value, kind string) ([]ort.Value, error) {
	out := make([]ort.Value, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok || v == nil {
			return nil, fmt.Errorf("missing %s tensor %q", kind, name)
		}
		out[i] = v
	}
	return out, nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.session != nil {
		err := s.session.Destroy()
		if err != nil {
			return fmt.Errorf("error destroying ORT session: %w", err)
		}
		s.session = nil
	}

	return nil
}

// Package providers - Provider interface for execution providers.
package providers

import (
	"fmt"
	"strings"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	Backend() ProviderBackend
	Options() ProviderOptions
}

// Accelerated reports whether p runs on something other than the general-purpose processor.
func Accelerated(p ExecutionProvider) bool {
	return p.Backend() != CPUProviderBackend
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - options: The options for the provider.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the provider creation fails.
func NewProvider(options ProviderOptions) (ExecutionProvider, error) {
	switch opts := options.(type) {
	case CPUOptions:
		return NewCPUProvider(opts), nil
	case CoreMLOptions:
		return NewCoreMLProvider(opts), nil
	case CUDAOptions:
		return NewCUDAProvider(opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider options type: %T", opts)
	}
}

// ParseBackend maps a device preference onto a backend. "auto" and "" map to
// AutoProviderBackend.
func ParseBackend(s string) (ProviderBackend, error) {
	switch b := ProviderBackend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", AutoProviderBackend:
		return AutoProviderBackend, nil
	case CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend:
		return b, nil
	default:
		return "", fmt.Errorf("unsupported device %q", s)
	}
}

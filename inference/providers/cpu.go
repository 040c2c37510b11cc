// Package providers - CPU based execution provider.
package providers

const (
	// CPUProviderBackend runs on the general-purpose processor. Always available.
	CPUProviderBackend ProviderBackend = "cpu"
	// AutoProviderBackend picks the best available backend at load time.
	AutoProviderBackend ProviderBackend = "auto"
)

// CPUProvider implements the ExecutionProvider interface.
type CPUProvider struct {
	options CPUOptions
}

// CPUOptions contains arguments for the CPU provider. ORT's CPU provider is
// appended implicitly, so there is nothing to configure.
type CPUOptions struct{}

func (CPUOptions) isProviderOptions() {}

// Backend returns the backend of the CPU provider.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Options returns the options of the CPU provider.
func (p *CPUProvider) Options() ProviderOptions {
	return p.options
}

// NewCPUProvider creates a new CPU provider.
func NewCPUProvider(options CPUOptions) *CPUProvider {
	return &CPUProvider{options: options}
}

// Package providers - Utility functions.
package providers

import (
	"os"
	"runtime"
)

// SharedLibraryEnv overrides the platform default onnxruntime library path.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library, or "" when the platform has no default.
func GetSharedLibPath() string {
	if p := os.Getenv(SharedLibraryEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "/usr/local/lib/libonnxruntime_arm64.so"
		}
		return "/usr/local/lib/libonnxruntime.so"
	}
	return ""
}

// defaultPreference lists the backends tried by auto selection, best first.
func defaultPreference() []ProviderBackend {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return []ProviderBackend{CoreMLProviderBackend, CPUProviderBackend}
	}
	if runtime.GOOS == "linux" || runtime.GOOS == "windows" {
		return []ProviderBackend{CUDAProviderBackend, CPUProviderBackend}
	}
	return []ProviderBackend{CPUProviderBackend}
}

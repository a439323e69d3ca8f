//go:build !govips || !cgo

package pipeline

const backendName = "imaging"

// Startup is a no-op without libvips.
func Startup() error { return nil }

func Shutdown() {}

// Backend names the native transformer compiled into this binary.
func Backend() string {
	return backendName
}

func newTransformer() (Transformer, error) {
	return stdTransformer{}, nil
}

//go:build govips && cgo

package pipeline

import (
	"runtime"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

const backendName = "libvips"

var runtimeState struct {
	once    sync.Once
	mu      sync.Mutex
	running bool
}

// Startup boots libvips once per process with one worker thread per CPU
// and a variant-sized operation cache.
func Startup() error {
	runtimeState.once.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: runtime.GOMAXPROCS(0),
			MaxCacheMem:      256 << 20,
			MaxCacheSize:     200,
		})

		runtimeState.mu.Lock()
		runtimeState.running = true
		runtimeState.mu.Unlock()
	})
	return nil
}

// Shutdown releases libvips. It cannot be restarted afterwards.
func Shutdown() {
	runtimeState.mu.Lock()
	defer runtimeState.mu.Unlock()
	if runtimeState.running {
		vips.Shutdown()
		runtimeState.running = false
	}
}

// Backend names the native transformer compiled into this binary.
func Backend() string {
	return backendName
}

func newTransformer() (Transformer, error) {
	return govipsTransformer{}, nil
}

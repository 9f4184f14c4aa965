package native

import (
	"errors"
	"sync"
)

var ErrNotRegistered = errors.New("native: no NativeEnvironment registered")

var (
	mu     sync.RWMutex
	global NativeEnvironment
)

// Register is called once from native code before the bridge starts.
func Register(env NativeEnvironment) {
	mu.Lock()
	defer mu.Unlock()
	global = env
}

// Safe returns the registered environment, or ErrNotRegistered if Register
// was never called.
func Safe() (NativeEnvironment, error) {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil, ErrNotRegistered
	}
	return global, nil
}

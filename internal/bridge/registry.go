package bridge

import "github.com/puzpuzpuz/xsync/v4"

// registry maps script message names to host handlers. Registering a name
// twice replaces the earlier handler.
type registry struct {
	handlers *xsync.Map[string, HandlerFunc]
}

func newRegistry() *registry {
	return &registry{handlers: xsync.NewMap[string, HandlerFunc]()}
}

func (r *registry) add(name string, fn HandlerFunc) {
	r.handlers.Store(name, fn)
}

// remove reports whether name was registered.
func (r *registry) remove(name string) bool {
	_, ok := r.handlers.LoadAndDelete(name)
	return ok
}

func (r *registry) lookup(name string) (HandlerFunc, bool) {
	return r.handlers.Load(name)
}

func (r *registry) names() []string {
	names := make([]string, 0, r.handlers.Size())
	r.handlers.Range(func(name string, _ HandlerFunc) bool {
		names = append(names, name)
		return true
	})
	return names
}

func (r *registry) clear() {
	r.handlers.Clear()
}

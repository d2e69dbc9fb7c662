package rt

import (
	"sync"
)

var (
	formatsMu sync.RWMutex
	formats   = map[string]*Format{}
)

// RegisterFormat makes f available to loaded programs by name.
func RegisterFormat(f *Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats[f.Name] = f
}

// LookupFormat returns a registered format.
func LookupFormat(name string) (*Format, bool) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	f, ok := formats[name]
	return f, ok
}

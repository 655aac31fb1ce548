// internal/app/providers/registry.go
package providers

import (
	"fmt"
	"sort"
)

// Registry maps service names to providers. It is populated during
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	byName map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds a provider under its service name. Registering two
// providers with the same name is a wiring bug and returns an error.
func (reg *Registry) Register(p Provider) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider has empty service name")
	}
	if _, exists := reg.byName[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	reg.byName[name] = p
	return nil
}

// Lookup returns the provider registered under name.
func (reg *Registry) Lookup(name string) (Provider, bool) {
	p, ok := reg.byName[name]
	return p, ok
}

// Names returns the registered service names in sorted order.
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.byName))
	for name := range reg.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

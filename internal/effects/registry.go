// Registry of available transforms, keyed by configuration name
package effects

import (
	"fmt"
	"strings"
)

// Options carries the fixed parameters transforms are built with
type Options struct {
	ScaleFactor float64
}

// Factory builds a transform from options
type Factory func(opts Options) Transform

var (
	factories = make(map[string]Factory)
	order     []string
)

// Register adds a transform factory. Registering a key twice replaces the factory.
func Register(key string, factory Factory) {
	key = normalizeKey(key)
	if _, exists := factories[key]; !exists {
		order = append(order, key)
	}
	factories[key] = factory
}

func Get(key string) (Factory, bool) {
	factory, exists := factories[normalizeKey(key)]
	return factory, exists
}

func IsRegistered(key string) bool {
	_, exists := factories[normalizeKey(key)]
	return exists
}

// Names returns registered keys in registration order
func Names() []string {
	result := make([]string, len(order))
	copy(result, order)
	return result
}

// DefaultOrder is the chain used when no effect list is configured
func DefaultOrder() []string {
	return []string{"invert", "flip-horizontal", "flip-vertical", "scale"}
}

// BuildChain creates a chain with one disabled effect per key, in order.
func BuildChain(keys []string, opts Options) (*Chain, error) {
	effects := make([]*Effect, 0, len(keys))
	for _, key := range keys {
		factory, exists := Get(key)
		if !exists {
			return nil, fmt.Errorf("unknown effect: %s", key)
		}
		transform := factory(opts)
		effects = append(effects, NewEffect(transform.Name(), transform))
	}
	return NewChain(effects...)
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.ReplaceAll(key, "_", "-")
}

func init() {
	Register("invert", func(Options) Transform { return NewInvert() })
	Register("flip-horizontal", func(Options) Transform { return NewFlipHorizontal() })
	Register("flip-vertical", func(Options) Transform { return NewFlipVertical() })
	Register("scale", func(opts Options) Transform { return NewScale(opts.ScaleFactor) })
}

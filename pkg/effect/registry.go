package effect

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory creates a new unloaded instance of an effect.
type Factory func(ctx context.Context) (Effect, error)

var (
	registry       = map[Name]Factory{}
	registryLocker sync.Mutex
)

// Register makes an effect available to Create. It panics on duplicates.
func Register(name Name, factory Factory) {
	registryLocker.Lock()
	defer registryLocker.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Errorf("there is already registered an effect '%s'", name))
	}
	registry[name] = factory
}

func Create(ctx context.Context, name Name) (Effect, error) {
	registryLocker.Lock()
	factory, ok := registry[name]
	registryLocker.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (known: %v)", ErrUnknownEffect, name, Names())
	}
	e, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to create effect '%s': %w", name, err)
	}
	return e, nil
}

func Names() []Name {
	registryLocker.Lock()
	defer registryLocker.Unlock()
	names := make([]Name, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i] < names[j]
	})
	return names
}

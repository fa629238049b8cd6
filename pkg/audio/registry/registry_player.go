package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/xaionaro-go/audiofx/pkg/audio/types"
)

type PlayerPCMFactory interface {
	NewPlayerPCM() (types.PlayerPCM, error)
}

type registeredPlayerFactory struct {
	Priority int
	Name     string
	PlayerPCMFactory
}

var (
	playerFactoryRegistry       = map[reflect.Type]registeredPlayerFactory{}
	playerFactoryRegistryLocker sync.Mutex
)

// RegisterPlayerFactory adds a backend; backends register themselves from
// init, and a type may be registered only once.
func RegisterPlayerFactory(
	priority int,
	playerPCMFactory PlayerPCMFactory,
) {
	t := reflect.ValueOf(playerPCMFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	playerFactoryRegistryLocker.Lock()
	defer playerFactoryRegistryLocker.Unlock()
	if _, ok := playerFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of PlayerPCM of type %v", t))
	}
	playerFactoryRegistry[t] = registeredPlayerFactory{
		Priority:         priority,
		Name:             t.PkgPath() + "." + t.Name(),
		PlayerPCMFactory: playerPCMFactory,
	}
}

// PlayerFactories returns the registered factories, highest priority first;
// equal priorities are ordered by type name.
func PlayerFactories() []PlayerPCMFactory {
	playerFactoryRegistryLocker.Lock()
	registered := make([]registeredPlayerFactory, 0, len(playerFactoryRegistry))
	for _, factory := range playerFactoryRegistry {
		registered = append(registered, factory)
	}
	playerFactoryRegistryLocker.Unlock()

	sort.Slice(registered, func(i, j int) bool {
		if registered[i].Priority != registered[j].Priority {
			return registered[i].Priority > registered[j].Priority
		}
		return registered[i].Name < registered[j].Name
	})

	factories := make([]PlayerPCMFactory, 0, len(registered))
	for _, factory := range registered {
		factories = append(factories, factory.PlayerPCMFactory)
	}
	return factories
}

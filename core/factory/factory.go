package factory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// ErrUnknownModule is returned by Create for a type nobody registered.
var ErrUnknownModule = errors.New("unknown module type")

// ModuleConfig names a module implementation and carries its raw settings.
type ModuleConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Factory builds a T from raw settings.
type Factory[T any] func(map[string]any) (T, error)

// Registry maps module type names to factories. It is safe for concurrent use.
type Registry[T any] struct {
	mu     sync.RWMutex
	byName map[string]Factory[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{byName: make(map[string]Factory[T])}
}

// Register binds name to f. Names are case-insensitive and may be bound once.
func (r *Registry[T]) Register(name string, f Factory[T]) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return errors.New("factory name is empty")
	}
	if f == nil {
		return fmt.Errorf("factory %s is nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[key]; dup {
		return fmt.Errorf("factory %s already registered", key)
	}
	r.byName[key] = f
	return nil
}

// Names lists the registered type names in order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Create looks up cfg.Type and runs its factory over cfg.Conf.
func (r *Registry[T]) Create(cfg ModuleConfig) (T, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	r.mu.RLock()
	f, ok := r.byName[key]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w %q (have %s)", ErrUnknownModule, cfg.Type, strings.Join(r.Names(), ", "))
	}
	v, err := f(cfg.Conf)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build %s: %w", key, err)
	}
	return v, nil
}

// Decode maps raw settings onto out using json tags. Durations accept strings
// such as "90s" and comma separated strings fill slices.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}

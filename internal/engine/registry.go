package engine

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Registry struct {
	engines map[string]Engine
}

type RegistryParams struct {
	fx.In

	Logger  *zap.Logger
	Engines []Engine `group:"engines"`
}

// NewRegistry indexes engines by name. Constructors return nil for engines
// that cannot run on this host; those are skipped.
func NewRegistry(p RegistryParams) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range p.Engines {
		v := reflect.ValueOf(e)
		if e == nil || (v.Kind() == reflect.Ptr && v.IsNil()) {
			continue
		}
		r.engines[e.Name()] = e
		p.Logger.Debug("engine registered", zap.String("engine", e.Name()))
	}
	return r
}

// NewStaticRegistry builds a registry from explicit engines.
func NewStaticRegistry(engines ...Engine) *Registry {
	return NewRegistry(RegistryParams{Logger: zap.NewNop(), Engines: engines})
}

func (r *Registry) Get(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownEngine, name, r.Names())
	}
	return e, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AsEngine annotates an engine constructor for the "engines" group.
func AsEngine(f any) any {
	return fx.Annotate(f, fx.As(new(Engine)), fx.ResultTags(`group:"engines"`))
}

var Module = fx.Options(
	fx.Provide(
		AsEngine(NewLibAFL),
		AsEngine(NewStorFuzz),
		AsEngine(NewDDFuzz),
		AsEngine(NewLibFuzzer),
		AsEngine(NewWingFuzz),
		NewRegistry,
	),
)

package sim

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/host"
)

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

// NewGenerator returns an unstarted generator running the lowered body m,
// which receives the generator followed by args.
func (rt *Runtime) NewGenerator(m *host.Method, args []any) *Generator {
	return &Generator{
		method: m,
		args:   args,
		fields: map[string]any{
			abi.YieldedValue.Name:      nil,
			abi.GeneratorStack.Name:    nil,
			abi.GeneratorState.Name:    int64(abi.StateStart),
			abi.YieldFromIterator.Name: nil,
			abi.SentValue.Name:         nil,
			abi.ThrownValue.Name:       nil,
		},
	}
}

// Resume runs the generator until it yields, returns or raises. A nil
// thrown sends sent; otherwise thrown is raised at the suspension point.
// Exhaustion raises StopIteration carrying the return value.
func (rt *Runtime) Resume(g *Generator, sent any, thrown *Instance) (any, error) {
	if g.finished {
		if thrown != nil {
			return nil, Raise(thrown)
		}
		return nil, rt.stopIteration(rt.None)
	}
	if g.running {
		return nil, rt.raisef(rt.ValueError, "generator already executing")
	}
	state := g.fields[abi.GeneratorState.Name]
	if state == any(int64(abi.StateStart)) {
		if thrown != nil {
			g.finished = true
			return nil, Raise(thrown)
		}
		if sent != any(rt.None) {
			return nil, rt.raisef(rt.TypeError, "can't send non-None value to a just-started generator")
		}
	}

	g.fields[abi.SentValue.Name] = sent
	if thrown != nil {
		g.fields[abi.ThrownValue.Name] = thrown
	} else {
		g.fields[abi.ThrownValue.Name] = nil
	}
	log.Debugf("resuming %s in state %v", g.method.Name, state)

	g.running = true
	_, err := rt.Run(g.method, append([]any{g}, g.args...))
	g.running = false

	if err != nil {
		g.finished = true
		if _, ok := rt.isStopIteration(err); ok {
			return nil, rt.raisef(rt.RuntimeError, "generator raised StopIteration")
		}
		return nil, err
	}
	if g.fields[abi.GeneratorState.Name] == any(int64(abi.StateFinished)) {
		g.finished = true
		return nil, rt.stopIteration(g.fields[abi.YieldedValue.Name])
	}
	return g.fields[abi.YieldedValue.Name], nil
}

func (rt *Runtime) installGenerator() {
	gen := rt.Generator
	gen.Def(fn("__iter__", selfOnly, func(args []any) (any, error) {
		return args[0], nil
	}))
	gen.Def(fn("__next__", selfOnly, func(args []any) (any, error) {
		return rt.Resume(args[0].(*Generator), rt.None, nil)
	}))
	gen.Def(fn("send", []string{"self", "value"}, func(args []any) (any, error) {
		return rt.Resume(args[0].(*Generator), args[1], nil)
	}))
	gen.Def(fn("throw", []string{"self", "exc"}, func(args []any) (any, error) {
		exc, err := rt.exceptionOf(args[1])
		if err != nil {
			return nil, err
		}
		return rt.Resume(args[0].(*Generator), rt.None, exc)
	}))
}

// ---------------------------------------------------------------------------
// Lowered functions
// ---------------------------------------------------------------------------

// Lowered wraps a lowered host method as a function with the given
// parameter names.
func (rt *Runtime) Lowered(m *host.Method, params ...string) *Function {
	return &Function{
		Name:   m.Name,
		Params: params,
		Body: func(args []any) (any, error) {
			return rt.Run(m, args)
		},
	}
}

// LoweredGenerator wraps a lowered generator body: calling the function
// returns a new generator.
func (rt *Runtime) LoweredGenerator(m *host.Method, params ...string) *Function {
	return &Function{
		Name:   m.Name,
		Params: params,
		Body: func(args []any) (any, error) {
			return rt.NewGenerator(m, args), nil
		},
	}
}

package memo

import "context"

// TaskFunc is a function bound into a cached_run scope: a plain Go
// function wrapped so it can be invoked generically through Core.Invoke.
type TaskFunc func(args ...any) (any, error)

// NamedTask pairs a TaskFunc with the name under which it is memoized.
type NamedTask struct {
	Name string
	Fn   TaskFunc
}

// Binding is a single scoped wrapper returned by ScopedRun/ScopedRunMulti.
// It holds a reference to a scope-shared active flag: once the scope ends,
// every Binding from it fails fast with ErrScopeExpired rather than
// silently running unmemoized or against a torn-down Core.
type Binding struct {
	core   *Core
	active *bool
	task   NamedTask
	cfg    CallConfig
}

// Call invokes the bound task through the memoization pipeline. Args are
// both the positional arguments passed to the underlying TaskFunc and the
// arguments fed to cache-key derivation.
func (b *Binding) Call(ctx context.Context, args ...any) (any, error) {
	if !*b.active {
		return nil, ErrScopeExpired
	}
	return b.core.Invoke(ctx, b.task.Name, func() (any, error) {
		return b.task.Fn(args...)
	}, args, nil, b.cfg)
}

// ScopedRun is the single-function form of cached_run: it returns one
// Binding plus an exit function the caller MUST call when the scope ends
// (typically via defer). Config applies uniformly to the wrapper.
func ScopedRun(core *Core, cfg CallConfig, task NamedTask) (*Binding, func(), error) {
	bindings, exit, err := ScopedRunMulti(core, cfg, task)
	if err != nil {
		return nil, nil, err
	}
	return bindings[0], exit, nil
}

// ScopedRunMulti is the multi-function form of cached_run: every returned
// Binding shares the same scope-local active flag, so the exit function
// invalidates all of them at once.
func ScopedRunMulti(core *Core, cfg CallConfig, tasks ...NamedTask) ([]*Binding, func(), error) {
	if len(tasks) == 0 {
		return nil, nil, ErrNoFunctions
	}

	active := true
	bindings := make([]*Binding, len(tasks))
	for i, task := range tasks {
		bindings[i] = &Binding{core: core, active: &active, task: task, cfg: cfg}
	}

	exit := func() { active = false }
	return bindings, exit, nil
}

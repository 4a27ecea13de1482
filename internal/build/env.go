package build

import (
	"maps"
	"slices"

	"github.com/cruciblehq/cruxgate/internal/recipe"
)

// Execution settings shared by every command of a build.
//
// The base environment comes from the recipe. A command that needs extra
// variables derives a new value with [execEnv.with] so the base is never
// modified.
type execEnv struct {
	shell   string
	workdir string
	env     map[string]string
}

// Creates an [execEnv] from the recipe's shell, workdir, and environment.
func newExecEnv(r *recipe.Recipe) *execEnv {
	e := &execEnv{
		shell:   r.Shell,
		workdir: r.Workdir,
		env:     make(map[string]string, len(r.Env)),
	}
	maps.Copy(e.env, r.Env)
	return e
}

// Returns a copy with extra variables overlaid. The receiver is not modified.
func (e *execEnv) with(extra map[string]string) *execEnv {
	derived := &execEnv{
		shell:   e.shell,
		workdir: e.workdir,
		env:     make(map[string]string, len(e.env)+len(extra)),
	}
	maps.Copy(derived.env, e.env)
	maps.Copy(derived.env, extra)
	return derived
}

// Formats the environment as "key=value" strings sorted by key.
func (e *execEnv) environ() []string {
	keys := slices.Sorted(maps.Keys(e.env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+e.env[k])
	}
	return env
}

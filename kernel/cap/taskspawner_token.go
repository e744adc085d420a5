package cap

var taskSpawnerToken TaskSpawnerToken

// Task is a unit of work a driver can hand to the executor. It is deferred
// to the executor's own interface rather than kernel/async's Task type to
// avoid an import cycle (kernel/async itself hands out capability-gated
// operations to the tasks it runs).
type Task interface {
	// Poll advances the task and reports whether it has completed.
	Poll() bool
}

// TaskSpawnerToken authorizes submitting a task for execution under a
// display name, without exposing the rest of the executor's control surface.
type TaskSpawnerToken struct{}

// Spawn submits task for execution under name. Returns false if no executor
// has registered itself via RegisterSpawnFunc yet.
func (TaskSpawnerToken) Spawn(name string, task Task) bool {
	if spawnFn == nil {
		return false
	}
	spawnFn(name, task)
	return true
}

// spawnFn is installed by kernel/async's executor during its own Init, kept
// here rather than imported directly to avoid cap <-> async forming a cycle.
var spawnFn func(name string, task Task)

// RegisterSpawnFunc installs the executor's submission entry point. Called
// once by kernel/async during boot.
func RegisterSpawnFunc(f func(name string, task Task)) {
	spawnFn = f
}

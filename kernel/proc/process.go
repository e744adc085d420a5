package proc

import (
	"hadron/kernel/async"
	"hadron/kernel/cpu"
)

// Process owns a loaded binary's address space and the entry state it was
// started with. It implements async.Future directly: kernel process loading
// happens only from already-privileged kernel code, never through the
// capability-gated cap.Task surface drivers use.
type Process struct {
	as      *AddressSpace
	entry   uintptr
	rsp     uintptr
	entered bool
}

func newProcess(as *AddressSpace) *Process {
	return &Process{as: as}
}

// Spawn registers p with the executor under name. The caller supplies the
// entry point and stack pointer LoadProcess returned alongside p.
func Spawn(name string, p *Process, entry, rsp uintptr) (async.TaskID, bool) {
	p.entry = entry
	p.rsp = rsp
	return async.Spawn(name, p)
}

// Poll performs the one-time ring 0 -> ring 3 transition on its first call.
// EnterUserMode does not return in practice: control only comes back to
// kernel code through a later interrupt or syscall trap, at which point
// this task is no longer the thing driving that context. The Ready return
// below exists so the type satisfies async.Future; it is unreachable on
// real hardware.
func (p *Process) Poll(w *async.Waker) async.PollResult {
	if p.entered {
		return async.Ready
	}
	p.entered = true

	p.as.Activate()
	cpu.EnterUserMode(p.entry, p.rsp)
	return async.Ready
}

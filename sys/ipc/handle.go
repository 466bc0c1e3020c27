package ipc

import (
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
)

// handle reports messages from one remote task.
type handle struct {
	syshandle.NopHandler
	ipc    *IPC
	remote systask.ID
}

func (h *handle) CheckReadReady(task systask.ID, _ any) bool {
	return h.ipc.Pending(task, h.remote)
}

// A buffer belongs to its receiving task and goes away with it.
func (h *handle) TaskKilled(task systask.ID) {
	h.ipc.drop(task, h.remote)
}

// Attach registers the IPC handles, one per remote task.
func (i *IPC) Attach(reg *syshandle.Registry) error {
	for id := systask.ID(0); id < systask.MaxTasks; id++ {
		if err := reg.Register(syshandle.IPC(id), &handle{ipc: i, remote: id}); err != nil {
			for prev := systask.ID(0); prev < id; prev++ {
				reg.Unregister(syshandle.IPC(prev))
			}
			return err
		}
	}
	return nil
}

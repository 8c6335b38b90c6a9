package vm

import (
	akitavm "github.com/sarchlab/akita/v4/mem/vm"
)

// PID identifies a simulated process.
type PID = akitavm.PID

// A Process owns one page table. Processes are kept in a FIFO ready queue
// in registration order and are never removed.
type Process struct {
	PID   PID
	Table *PageTable
}

// NewProcess creates a process with an empty page table.
func NewProcess(pid PID, config Config) *Process {
	return &Process{
		PID:   pid,
		Table: NewPageTable(config),
	}
}

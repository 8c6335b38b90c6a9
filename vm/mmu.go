package vm

import (
	"errors"
	"fmt"
)

// Permission is a 2-bit access mask.
type Permission uint32

// Permission bits.
const (
	PermRead  Permission = 1 << iota // read access
	PermWrite                        // write access
)

// CanWrite reports whether the permission includes write access.
func (p Permission) CanWrite() bool {
	return p&PermWrite != 0
}

// Errors reported by MMU operations. ErrFrameExhausted is an expected,
// recoverable condition; the others indicate a misbehaving driver.
var (
	ErrFrameExhausted = errors.New("no free page frame")
	ErrAlreadyMapped  = errors.New("page already mapped")
	ErrNotMapped      = errors.New("page not mapped")
	ErrOutOfRange     = errors.New("virtual page number out of range")
)

// Stats holds counters for MMU activity.
type Stats struct {
	// Allocations is the number of successful AllocatePage calls.
	Allocations uint64

	// Frees is the number of successful FreePage calls.
	Frees uint64

	// Switches is the number of switches to an existing process.
	Switches uint64

	// Forks is the number of processes created by SwitchProcess.
	Forks uint64

	// COWReclaims counts write faults resolved by reclaiming a frame
	// whose last mapping belonged to the faulting process.
	COWReclaims uint64

	// COWCopies counts write faults resolved by moving the mapping to a
	// fresh frame.
	COWCopies uint64

	// UnresolvedFaults counts faults outside the copy-on-write case.
	UnresolvedFaults uint64
}

// An MMU simulates address translation and frame management for a set of
// cooperating processes. One frame table is shared by all of them; each
// process owns a two-level page table. All operations are synchronous and
// the MMU is not safe for concurrent use.
type MMU struct {
	config    Config
	frames    *FrameTable
	processes []*Process
	current   *Process
	active    *PageTable

	stats Stats
}

// New creates an MMU with an initial process (PID 0) as current. It
// panics if the config is invalid.
func New(config Config) *MMU {
	if err := config.Validate(); err != nil {
		panic(err)
	}

	m := &MMU{
		config: config,
		frames: NewFrameTable(config.NumFrames),
	}

	initProc := NewProcess(0, config)
	m.processes = append(m.processes, initProc)
	m.current = initProc
	m.active = initProc.Table

	return m
}

// Config returns the MMU's geometry.
func (m *MMU) Config() Config {
	return m.config
}

// Stats returns a copy of the activity counters.
func (m *MMU) Stats() Stats {
	return m.stats
}

// Current returns the PID of the running process.
func (m *MMU) Current() PID {
	return m.current.PID
}

// Processes returns the PIDs of all known processes in FIFO registration
// order.
func (m *MMU) Processes() []PID {
	pids := make([]PID, len(m.processes))
	for i, p := range m.processes {
		pids[i] = p.PID
	}
	return pids
}

// FrameRefCount returns the number of valid mappings of the given frame
// across all processes.
func (m *MMU) FrameRefCount(frame int) int {
	return m.frames.RefCount(frame)
}

// FramesInUse returns the number of frames with at least one mapping.
func (m *MMU) FramesInUse() int {
	return m.frames.FramesInUse()
}

// Entry returns a copy of the current process's PTE for vpn.
func (m *MMU) Entry(vpn uint64) (PTE, bool) {
	return m.active.Entry(vpn)
}

// EntryOf returns a copy of the named process's PTE for vpn.
func (m *MMU) EntryOf(pid PID, vpn uint64) (PTE, bool) {
	p := m.findProcess(pid)
	if p == nil {
		return PTE{}, false
	}
	return p.Table.Entry(vpn)
}

// AllocatePage maps vpn in the current process to the lowest-indexed free
// frame and returns the frame index. The entry becomes writable iff perm
// includes write access. Returns ErrFrameExhausted (with frame NoFrame)
// when every frame is referenced.
func (m *MMU) AllocatePage(vpn uint64, perm Permission) (int, error) {
	pte := m.active.entryForWrite(vpn)
	if pte == nil {
		return NoFrame, fmt.Errorf("allocate vpn %d: %w", vpn, ErrOutOfRange)
	}
	if pte.Valid {
		return NoFrame, fmt.Errorf("allocate vpn %d: %w", vpn, ErrAlreadyMapped)
	}

	frame, ok := m.frames.FindFree()
	if !ok {
		return NoFrame, ErrFrameExhausted
	}

	*pte = PTE{
		Valid:    true,
		Writable: perm.CanWrite(),
		Frame:    frame,
	}
	m.frames.Retain(frame)
	m.stats.Allocations++

	return frame, nil
}

// FreePage unmaps vpn in the current process and drops one mapping from
// its frame. The frame itself stays allocated while other page tables
// still reference it. Freeing an unmapped vpn is a driver error and
// leaves all state untouched.
func (m *MMU) FreePage(vpn uint64) error {
	pte := m.active.lookup(vpn)
	if pte == nil {
		return fmt.Errorf("free vpn %d: %w", vpn, ErrNotMapped)
	}
	if !pte.Valid {
		return fmt.Errorf("free vpn %d: %w", vpn, ErrNotMapped)
	}

	m.frames.Release(pte.Frame)
	*pte = PTE{}
	m.stats.Frees++

	return nil
}

// HandlePageFault resolves a write fault on a copy-on-write protected
// page of the current process. It returns true iff the faulting entry is
// valid, not writable, and marked private. Any other fault condition is
// unrecoverable and returns false.
//
// When the faulting process holds the only mapping of the frame, the
// entry is made writable in place. When the frame is shared, the mapping
// moves to the lowest-indexed free frame. Either way the entry leaves the
// copy-on-write state, so the same fault cannot recur.
func (m *MMU) HandlePageFault(vpn uint64, perm Permission) bool {
	pte := m.active.lookup(vpn)
	if pte == nil || !pte.Valid || pte.Writable || !pte.Private ||
		!perm.CanWrite() {
		m.stats.UnresolvedFaults++
		return false
	}

	if m.frames.RefCount(pte.Frame) == 1 {
		pte.Writable = true
		pte.Private = false
		m.stats.COWReclaims++
		return true
	}

	// The frame is shared. Perform the metadata-level copy: drop this
	// mapping and re-point the entry at a fresh frame. The old frame
	// keeps at least one other mapping, so releasing it first cannot
	// make it the frame FindFree picks.
	m.frames.Release(pte.Frame)
	newFrame, ok := m.frames.FindFree()
	if !ok {
		m.frames.Retain(pte.Frame)
		m.stats.UnresolvedFaults++
		return false
	}

	pte.Frame = newFrame
	pte.Writable = true
	pte.Private = false
	m.frames.Retain(newFrame)
	m.stats.COWCopies++

	return true
}

// SwitchProcess makes the process with the given pid current. If no such
// process exists, it forks one from the current process: the child
// inherits every mapping under copy-on-write and becomes current.
func (m *MMU) SwitchProcess(pid PID) {
	if p := m.findProcess(pid); p != nil {
		m.current = p
		m.active = p.Table
		m.stats.Switches++
		return
	}

	child := m.fork(pid)
	m.processes = append(m.processes, child)
	m.current = child
	m.active = child.Table
	m.stats.Forks++
}

// findProcess scans the ready queue in FIFO order for pid.
func (m *MMU) findProcess(pid PID) *Process {
	for _, p := range m.processes {
		if p.PID == pid {
			return p
		}
	}
	return nil
}

// fork builds a child page table sharing every mapping of the current
// process. Pages that are writable, or already under copy-on-write, are
// write-protected and marked private on both sides; pages that were
// shared read-only stay read-only with no private marker. Every mapping
// the child inherits adds one reference to its frame.
func (m *MMU) fork(pid PID) *Process {
	child := NewProcess(pid, m.config)
	parent := m.current.Table

	for dirIndex := 0; dirIndex < parent.NumDirectories(); dirIndex++ {
		parentDir := parent.directory(dirIndex)
		if parentDir == nil {
			continue
		}
		childDir := child.Table.ensureDirectory(dirIndex)

		for pteIndex := range parentDir.ptes {
			parentPTE := &parentDir.ptes[pteIndex]
			childPTE := &childDir.ptes[pteIndex]

			childPTE.Valid = parentPTE.Valid
			childPTE.Frame = parentPTE.Frame
			childPTE.Writable = false

			if parentPTE.Writable || parentPTE.Private {
				parentPTE.Writable = false
				parentPTE.Private = true
				childPTE.Private = true
			}

			if childPTE.Valid {
				m.frames.Retain(childPTE.Frame)
			}
		}
	}

	return child
}

// Translate resolves vpn to a frame index for the current process. It
// fails when the covering directory is absent, the entry is invalid, or a
// write is attempted on a non-writable entry. On failure the caller is
// expected to try HandlePageFault.
func (m *MMU) Translate(vpn uint64, perm Permission) (int, bool) {
	pte := m.active.lookup(vpn)
	if pte == nil || !pte.Valid {
		return NoFrame, false
	}
	if perm.CanWrite() && !pte.Writable {
		return NoFrame, false
	}
	return pte.Frame, true
}

// Package driver applies trace events to an MMU, one event at a time,
// the way the external trace harness drives the simulated memory system.
package driver

import (
	"fmt"
	"io"

	"github.com/sarchlab/vmsim/trace"
	"github.com/sarchlab/vmsim/vm"
)

// Outcome classifies how one event was handled.
type Outcome int

// The event outcomes.
const (
	// OutcomeOK means the event completed without faulting.
	OutcomeOK Outcome = iota

	// OutcomeCOWResolved means an access faulted and the fault was
	// resolved by copy-on-write handling.
	OutcomeCOWResolved

	// OutcomeSegFault means an access faulted with no recovery. The
	// access is dropped; the driver continues with the next event.
	OutcomeSegFault

	// OutcomeError means an alloc or free event was rejected.
	OutcomeError
)

// String returns a short label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCOWResolved:
		return "cow"
	case OutcomeSegFault:
		return "segfault"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// A Result records how one event was handled.
type Result struct {
	Event   trace.Event
	Outcome Outcome

	// PID is the current process after the event. For a switch event
	// this is the switch target.
	PID vm.PID

	// Frame is the frame an alloc, read, or write resolved to.
	// vm.NoFrame when the event did not resolve to a frame.
	Frame int

	// Err is set when Outcome is OutcomeError.
	Err error
}

// A Driver runs trace events against an MMU.
type Driver struct {
	mmu    *vm.MMU
	output io.Writer
}

// Option configures a Driver.
type Option func(*Driver)

// WithOutput makes the driver log one line per event to w.
func WithOutput(w io.Writer) Option {
	return func(d *Driver) {
		d.output = w
	}
}

// New creates a driver for the given MMU.
func New(mmu *vm.MMU, opts ...Option) *Driver {
	d := &Driver{
		mmu:    mmu,
		output: io.Discard,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// MMU returns the MMU the driver operates on.
func (d *Driver) MMU() *vm.MMU {
	return d.mmu
}

// Run applies all events in order and returns one result per event.
func (d *Driver) Run(events []trace.Event) []Result {
	results := make([]Result, 0, len(events))
	for _, event := range events {
		results = append(results, d.Step(event))
	}
	return results
}

// Step applies a single event.
func (d *Driver) Step(event trace.Event) Result {
	var result Result

	switch event.Kind {
	case trace.EventAlloc:
		result = d.alloc(event)
	case trace.EventFree:
		result = d.free(event)
	case trace.EventRead:
		result = d.access(event, vm.PermRead)
	case trace.EventWrite:
		result = d.access(event, vm.PermRead|vm.PermWrite)
	case trace.EventSwitch:
		d.mmu.SwitchProcess(event.PID)
		result = Result{Event: event, Outcome: OutcomeOK, Frame: vm.NoFrame}
	default:
		panic(fmt.Sprintf("unknown event kind %v", event.Kind))
	}

	result.PID = d.mmu.Current()
	d.log(result)

	return result
}

func (d *Driver) alloc(event trace.Event) Result {
	frame, err := d.mmu.AllocatePage(event.VPN, event.Perm)
	if err != nil {
		return Result{
			Event:   event,
			Outcome: OutcomeError,
			Frame:   vm.NoFrame,
			Err:     err,
		}
	}
	return Result{Event: event, Outcome: OutcomeOK, Frame: frame}
}

func (d *Driver) free(event trace.Event) Result {
	if err := d.mmu.FreePage(event.VPN); err != nil {
		return Result{
			Event:   event,
			Outcome: OutcomeError,
			Frame:   vm.NoFrame,
			Err:     err,
		}
	}
	return Result{Event: event, Outcome: OutcomeOK, Frame: vm.NoFrame}
}

// access translates the page, dispatching to the fault handler on
// failure. The handler only resolves copy-on-write write faults; anything
// else is a fatal fault for this access.
func (d *Driver) access(event trace.Event, perm vm.Permission) Result {
	if frame, ok := d.mmu.Translate(event.VPN, perm); ok {
		return Result{Event: event, Outcome: OutcomeOK, Frame: frame}
	}

	if !d.mmu.HandlePageFault(event.VPN, perm) {
		return Result{Event: event, Outcome: OutcomeSegFault, Frame: vm.NoFrame}
	}

	frame, ok := d.mmu.Translate(event.VPN, perm)
	if !ok {
		panic(fmt.Sprintf(
			"translation for vpn %d failed after a resolved fault", event.VPN))
	}

	return Result{Event: event, Outcome: OutcomeCOWResolved, Frame: frame}
}

func (d *Driver) log(result Result) {
	event := result.Event

	switch {
	case result.Err != nil:
		fmt.Fprintf(d.output, "[pid %d] %v %d: %v\n",
			d.mmu.Current(), event.Kind, event.VPN, result.Err)
	case event.Kind == trace.EventSwitch:
		fmt.Fprintf(d.output, "[pid %d] switched\n", d.mmu.Current())
	case result.Frame == vm.NoFrame:
		fmt.Fprintf(d.output, "[pid %d] %v %d: %v\n",
			d.mmu.Current(), event.Kind, event.VPN, result.Outcome)
	default:
		fmt.Fprintf(d.output, "[pid %d] %v %d -> frame %d (%v)\n",
			d.mmu.Current(), event.Kind, event.VPN, result.Frame,
			result.Outcome)
	}
}

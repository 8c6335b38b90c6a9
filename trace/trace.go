// Package trace parses the textual access traces that drive the
// simulator.
//
// A trace is line oriented. Blank lines and lines starting with '#' are
// skipped. The events are:
//
//	alloc <vpn> <r|w|rw>    demand-allocate a page
//	free <vpn>              release a mapping
//	read <vpn>              read access
//	write <vpn>             write access
//	switch <pid>            switch to a process, forking it if unknown
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/vmsim/vm"
)

// EventKind identifies the type of a trace event.
type EventKind int

// The trace event kinds.
const (
	EventAlloc EventKind = iota
	EventFree
	EventRead
	EventWrite
	EventSwitch
)

// String returns the trace keyword for the kind.
func (k EventKind) String() string {
	switch k {
	case EventAlloc:
		return "alloc"
	case EventFree:
		return "free"
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventSwitch:
		return "switch"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// An Event is one parsed trace line.
type Event struct {
	Kind EventKind

	// VPN is the virtual page number. Unused for switch events.
	VPN uint64

	// PID is the switch target. Only set for switch events.
	PID vm.PID

	// Perm is the requested permission. Only set for alloc events.
	Perm vm.Permission

	// Line is the 1-based trace line the event came from.
	Line int
}

// ParseFile reads a trace from a file.
func ParseFile(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	events, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return events, nil
}

// Parse reads a trace from r.
func Parse(r io.Reader) ([]Event, error) {
	var events []Event

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		event, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		event.Line = lineNum
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return events, nil
}

func parseLine(line string) (Event, error) {
	fields := strings.Fields(line)
	keyword := fields[0]

	switch keyword {
	case "alloc":
		if len(fields) != 3 {
			return Event{}, fmt.Errorf("alloc takes <vpn> <r|w|rw>, got %q", line)
		}
		vpn, err := parseVPN(fields[1])
		if err != nil {
			return Event{}, err
		}
		perm, err := parsePerm(fields[2])
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventAlloc, VPN: vpn, Perm: perm}, nil

	case "free":
		return parseVPNEvent(EventFree, fields, line)

	case "read":
		return parseVPNEvent(EventRead, fields, line)

	case "write":
		return parseVPNEvent(EventWrite, fields, line)

	case "switch":
		if len(fields) != 2 {
			return Event{}, fmt.Errorf("switch takes <pid>, got %q", line)
		}
		pid, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return Event{}, fmt.Errorf("invalid pid %q", fields[1])
		}
		return Event{Kind: EventSwitch, PID: vm.PID(pid)}, nil

	default:
		return Event{}, fmt.Errorf("unknown event %q", keyword)
	}
}

func parseVPNEvent(kind EventKind, fields []string, line string) (Event, error) {
	if len(fields) != 2 {
		return Event{}, fmt.Errorf("%v takes <vpn>, got %q", kind, line)
	}
	vpn, err := parseVPN(fields[1])
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, VPN: vpn}, nil
}

func parseVPN(s string) (uint64, error) {
	vpn, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid vpn %q", s)
	}
	return vpn, nil
}

func parsePerm(s string) (vm.Permission, error) {
	switch s {
	case "r":
		return vm.PermRead, nil
	case "w":
		return vm.PermWrite, nil
	case "rw":
		return vm.PermRead | vm.PermWrite, nil
	default:
		return 0, fmt.Errorf("invalid permission %q", s)
	}
}

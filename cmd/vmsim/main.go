// Package main provides the entry point for VMSim.
// VMSim is a trace-driven virtual memory simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/akita/v4/datarecording"

	"github.com/sarchlab/vmsim/driver"
	"github.com/sarchlab/vmsim/trace"
	"github.com/sarchlab/vmsim/vm"
)

var (
	numFrames  = flag.Int("frames", 0, "Number of physical page frames")
	numPages   = flag.Int("pages", 0, "Number of virtual pages per process")
	configPath = flag.String("config", "", "Path to vm configuration JSON file")
	recordName = flag.String("record", "",
		"Record per-event results into <name>.sqlite3")
	verbose = flag.Bool("v", false, "Verbose output")
)

// eventRecord is the row format for -record.
type eventRecord struct {
	Line    int    `json:"line"`
	PID     uint32 `json:"pid"`
	Event   string `json:"event"`
	VPN     uint64 `json:"vpn"`
	Frame   int    `json:"frame"`
	Outcome string `json:"outcome"`
}

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: vmsim [options] <trace-file>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	tracePath := flag.Arg(0)

	events, err := trace.ParseFile(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	config, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", tracePath)
		fmt.Printf("Events: %d\n", len(events))
		fmt.Printf("Frames: %d, pages: %d, PTEs per directory: %d\n",
			config.NumFrames, config.NumPages, config.PTEsPerDirectory)
	}

	mmu := vm.New(config)

	var opts []driver.Option
	if *verbose {
		opts = append(opts, driver.WithOutput(os.Stdout))
	}

	results := driver.New(mmu, opts...).Run(events)

	if *recordName != "" {
		recordResults(*recordName, results)
	}

	printSummary(mmu, results)

	if countOutcome(results, driver.OutcomeSegFault) > 0 {
		os.Exit(1)
	}
}

// buildConfig merges the config file with command-line overrides.
func buildConfig() (vm.Config, error) {
	config := vm.DefaultConfig()

	if *configPath != "" {
		var err error
		config, err = vm.LoadConfig(*configPath)
		if err != nil {
			return vm.Config{}, err
		}
	}

	if *numFrames > 0 {
		config.NumFrames = *numFrames
	}
	if *numPages > 0 {
		config.NumPages = *numPages
	}

	return config, config.Validate()
}

func recordResults(name string, results []driver.Result) {
	recorder := datarecording.NewDataRecorder(name)
	defer recorder.Close()

	recorder.CreateTable("trace_events", eventRecord{})
	for _, result := range results {
		recorder.InsertData("trace_events", eventRecord{
			Line:    result.Event.Line,
			PID:     uint32(result.PID),
			Event:   result.Event.Kind.String(),
			VPN:     result.Event.VPN,
			Frame:   result.Frame,
			Outcome: result.Outcome.String(),
		})
	}
	recorder.Flush()
}

func printSummary(mmu *vm.MMU, results []driver.Result) {
	stats := mmu.Stats()

	fmt.Printf("\nEvents:           %d\n", len(results))
	fmt.Printf("Processes:        %d\n", len(mmu.Processes()))
	fmt.Printf("Pages allocated:  %d\n", stats.Allocations)
	fmt.Printf("Pages freed:      %d\n", stats.Frees)
	fmt.Printf("COW reclaims:     %d\n", stats.COWReclaims)
	fmt.Printf("COW copies:       %d\n", stats.COWCopies)
	fmt.Printf("Segfaults:        %d\n",
		countOutcome(results, driver.OutcomeSegFault))
	fmt.Printf("Frames in use:    %d / %d\n",
		mmu.FramesInUse(), mmu.Config().NumFrames)
}

func countOutcome(results []driver.Result, outcome driver.Outcome) int {
	n := 0
	for _, result := range results {
		if result.Outcome == outcome {
			n++
		}
	}
	return n
}

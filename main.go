// Package main provides the entry point for VMSim.
// VMSim is a trace-driven virtual memory simulator: two-level page
// tables, reference-counted frame allocation, and copy-on-write forking.
//
// For the full CLI, use: go run ./cmd/vmsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("VMSim - Virtual Memory Simulator")
	fmt.Println("")
	fmt.Println("Usage: vmsim [options] <trace-file>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -frames    Number of physical page frames")
	fmt.Println("  -pages     Number of virtual pages per process")
	fmt.Println("  -config    Path to vm configuration JSON file")
	fmt.Println("  -record    Record per-event results into a sqlite3 file")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/vmsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/vmsim' instead.")
	}
}

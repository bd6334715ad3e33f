// dexflow runs the symbolic instruction-flow engine over a handful of
// built-in demo method bodies, either as an interactive TUI or, with
// -scenario, to completion on the command line.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dr8co/dexflow/flow"
)

const version = "0.1.0"

func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `dexflow v%s

USAGE:
    %s [OPTIONS]

DESCRIPTION:
    dexflow steps a symbolic instruction-flow engine over a set of
    built-in Dalvik bytecode demo scenarios. Without any flags, it opens
    an interactive branch explorer.

OPTIONS:
    -s, --scenario <name>   Run one scenario to completion and print its branches
    -l, --list              List the available scenario names
    -d, --debug             Disable color output in the explorer
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    # Launch the interactive explorer
    %s

    # Run one scenario headlessly
    %s -s xor-obfuscation

`, version, os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	flag.Usage = printUsage

	scenarioFlag := flag.String("scenario", "", "Run one scenario to completion and print its branches")
	listFlag := flag.Bool("list", false, "List the available scenario names")
	debugFlag := flag.Bool("debug", false, "Disable color output in the explorer")
	versionFlag := flag.Bool("version", false, "Show version information")

	flag.StringVar(scenarioFlag, "s", "", "Run one scenario to completion and print its branches")
	flag.BoolVar(listFlag, "l", false, "List the available scenario names")
	flag.BoolVar(debugFlag, "d", false, "Disable color output in the explorer")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	flag.Parse()

	if *versionFlag {
		fmt.Printf("dexflow v%s\n", version)
		return
	}

	if *listFlag {
		for _, d := range demos() {
			fmt.Printf("%-28s %s\n", d.Name, d.Description)
		}
		return
	}

	if *scenarioFlag != "" {
		runScenario(*scenarioFlag)
		return
	}

	if err := Start(Options{NoColor: *debugFlag, Debug: *debugFlag}); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}

func runScenario(name string) {
	for _, d := range demos() {
		if d.Name != name {
			continue
		}
		e := flow.New(d.Table, d.Registers, d.Symbols, false)
		for i := 0; i < flow.MaxIterations && !e.IsDone(); i++ {
			e.Tick()
		}
		fmt.Printf("%s: %s\n", d.Name, d.Description)
		for _, b := range e.GetAllBranches() {
			last := "-"
			if b.State.LastInstruction != nil {
				last = b.State.LastInstruction.String()
			}
			fmt.Printf("  branch %d  pc=%s  finished=%v  tainted=%v  last=%s\n",
				b.ID, b.PC, b.Finished, b.State.Tainted, last)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "unknown scenario %q; run with -l to list scenarios\n", name)
	os.Exit(1)
}

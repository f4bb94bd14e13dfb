package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/pspf-project/pspf/pkg/psp/format_2025"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(format_2025.ExitPanic)
		}
	}()

	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(format_2025.ExitIOError)
	}

	// LaunchWithLogLevel exits the process directly; args are passed through
	// unmodified unless FLAVOR_LAUNCHER_CLI is set.
	format_2025.LaunchWithLogLevel(exePath, os.Args[1:], "", "")
}

package config

import (
	"fmt"
	"os"
)

// Exitf prints a fatal startup error to stderr and terminates the process
// with exit code 1. Only command main functions call it; everything below
// them returns errors.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Package main provides the extdiff CLI.
//
// Commands:
//
//	extdiff check      compare adapter gradients with finite differences
//	extdiff eval       evaluate one registered function and its gradient
//	extdiff declare    print forward declarations and build flags
//	extdiff version    show version
package main

import (
	"fmt"
	"os"
)

const version = "v0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

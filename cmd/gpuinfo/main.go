// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command gpuinfo reports the capabilities of a gpu driver.
//
// Usage:
//
//	gpuinfo [--config file] [--driver name] <command>
//
// Commands:
//
//	limits   print the device limits and features
//	formats  print the texture format table
//	smoke    render and present a headless frame
package main

import (
	"fmt"
	"os"

	_ "github.com/gviegas/hal/gpu/soft"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gpuinfo:", err)
		os.Exit(1)
	}
}

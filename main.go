// Package main is the entry point for ledping, a UDP latency probe and LED actuator endpoint.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/ledping/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

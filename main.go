// Package main is the entry point for the Link-Chat agent.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/linkchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

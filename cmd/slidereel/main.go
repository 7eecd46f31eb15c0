// Package main is the entry point for the slidereel application.
package main

import (
	"os"

	"github.com/jmylchreest/slidereel/cmd/slidereel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the property-price-tracker server.
package main

import (
	"os"

	"github.com/donaldgifford/property-price-tracker/cmd/property-price-tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

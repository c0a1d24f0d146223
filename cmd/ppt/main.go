// Package main is the entry point for the ppt CLI client.
package main

import (
	"github.com/donaldgifford/property-price-tracker/cmd/ppt/cmd"
)

func main() {
	cmd.Execute()
}

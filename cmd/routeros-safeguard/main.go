// Package main is the entry point for routeros-safeguard.
package main

import (
	"os"
)

func main() {
	os.Exit(exitCode(Execute()))
}

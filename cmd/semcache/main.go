// Package main provides the semcache CLI for running and exercising the
// semantic response cache.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

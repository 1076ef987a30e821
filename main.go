// Package main is the entry point for the hoopcluster CLI tool, which
// aggregates basketball box-score records and segments players into
// behavioral profiles via K-Means clustering.
package main

import "github.com/hooplab/hoopcluster/cmd"

func main() {
	cmd.Execute()
}

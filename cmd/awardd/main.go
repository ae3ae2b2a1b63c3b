// Package main is the single-binary entrypoint for awardd, the household
// award evaluation daemon.
package main

import "github.com/hearthboard/awards/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

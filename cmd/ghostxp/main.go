// Package main is the single-binary entrypoint for ghostxp.
package main

import "github.com/ghostline/ghostxp/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

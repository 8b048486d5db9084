// Package main is the single-binary entrypoint for mindcamp.
package main

import "github.com/mindcamp/mindcamp/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

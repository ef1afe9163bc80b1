// main package for funcov command-line tool
// Package main is the entry point for the funcov CLI.
package main

import "funcov.dev/pkg/funcov/cmd"

func main() {
	cmd.Execute()
}

// Package main is the entry point for the mindstudio-local CLI.
// It connects locally running model servers to MindStudio.
package main

import (
	"mindstudio/local/cmd"
)

func main() {
	cmd.Execute()
}

// The main package for the progress-tracker executable.
package main

import (
	"github.com/JakeFAU/progress-tracker/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

// The main package for the scrapper executable.
package main

import (
	"github.com/scrapekit/scrapper/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

// The main package for the jobscraper executable.
package main

import (
	"github.com/JakeFAU/realtime-job-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

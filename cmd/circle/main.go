// ABOUTME: Entry point for the circle binary.
// ABOUTME: Executes the root Cobra command and flushes logs on exit.
package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

func main() {
	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

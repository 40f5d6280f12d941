// Command tiptoroctl is the operator tool for tiptoro: it inspects the skill
// directory, manages database migrations and runs an offline pipeline demo.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

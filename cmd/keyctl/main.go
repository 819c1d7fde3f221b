// Command keyctl administers a running key server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/kilianp07/resqroute/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "resqroute:", err)
		os.Exit(1)
	}
}

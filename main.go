package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"waterwise/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "waterwise:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"shutdownsched/internal/cli"
)

func main() {
	if err := cli.Execute(os.Args, cli.Env{}); err != nil {
		fmt.Fprintln(os.Stderr, "shutdownsched:", err)
		os.Exit(1)
	}
}

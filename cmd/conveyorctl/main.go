package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/conveyordev/conveyor/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "conveyorctl crashed: %v\n", r)
			if os.Getenv("CONVEYOR_DEBUG") != "" {
				debug.PrintStack()
			}
			os.Exit(2)
		}
	}()

	cli.Execute()
}

package main

import (
	"fmt"
	"os"

	"github.com/firefly-engineering/shellcore/cmd"
	"github.com/firefly-engineering/shellcore/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "shellcore: %s\n", msg)
		}
		os.Exit(errors.GetExitCode(err))
	}
}

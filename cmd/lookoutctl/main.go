package main

import (
	"fmt"
	"os"

	"frameworks/lookout/internal/cli"
	"frameworks/lookout/pkg/version"
)

func main() {
	version.ComponentName = "lookoutctl"
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

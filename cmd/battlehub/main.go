package main

import (
	"fmt"
	"os"

	"github.com/park285/battlehub/internal/obslog"
)

const releaseVersion = "0.4.0"

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer obslog.Sync()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		obslog.Sync()
		os.Exit(1)
	}
}

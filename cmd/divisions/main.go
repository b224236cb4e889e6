package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	divisions "github.com/armindomatias/go-divisions"
)

const version = "0.1.0"

// Exit codes: input problems (empty gallery, malformed listing, nothing
// classified) are told apart from runtime failures.
const (
	exitFailure = 1
	exitInput   = 2
)

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if divisions.IsStructural(err) {
		return exitInput
	}
	return exitFailure
}

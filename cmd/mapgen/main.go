package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mapgencmd "mapgen/internal/cli/cmd"
)

func main() {
	os.Exit(run())
}

// run executes the CLI and maps its error onto a process exit code.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := mapgencmd.Execute(ctx)
	if err == nil {
		return mapgencmd.ExitOK
	}
	var ee *mapgencmd.ExitError
	if !errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, err)
		return mapgencmd.ExitCLIError
	}
	if ee.Err != nil {
		fmt.Fprintln(os.Stderr, ee.Err)
	}
	return ee.Code
}

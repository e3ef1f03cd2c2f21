// Command chemledger manages the chemical record table and its replicated
// audit log.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chemledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

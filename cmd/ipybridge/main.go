// Command ipybridge is a Jupyter shell for editors.
//
//	ipybridge repl -- --kernel python3     interactive shell
//	ipybridge serve -- --existing          RPC server for editor plugins
//	ipybridge status                       query a running server
//
// Arguments after "--" are passed to the kernel connect step: --url,
// --token, --kernel and --existing [id].
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ipybridge: %v\n", err)
		os.Exit(1)
	}
}

// titlebot joins a chat channel and answers every posted link with the
// title of the page it points to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"titlebot/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "titlebot: %v\n", err)
		os.Exit(1)
	}
}

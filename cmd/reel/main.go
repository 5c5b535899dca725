// Command reel is a terminal front end for the clip service.
//
// Usage:
//
//	reel                          # interactive dashboard
//	reel upload talk.mp4          # upload, process and wait for clips
//	reel watch <job-id>           # follow an existing job
//	reel stats                    # queue statistics and agents
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reel: %v\n", err)
		return 1
	}
	return 0
}

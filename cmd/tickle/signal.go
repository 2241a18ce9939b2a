package main

import (
	"os"
	"os/signal"
	"syscall"
)

// listenForSignal blocks until SIGINT or SIGTERM arrives, then invokes
// stop. The online command runs this on its own goroutine so Ctrl-C
// translates into the driver's coarse Stop() cancellation.
func listenForSignal(stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	stop()
}

// Command watch follows a call's analysis status from the terminal.
// It consumes the live event stream and degrades to polling when the
// stream stalls, exactly like the web client does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/infrastructure/statusclient"
	"github.com/kirillkom/sales-coach/internal/observability/logging"
	"github.com/kirillkom/sales-coach/internal/watch"
)

func main() {
	var (
		apiURL       = flag.String("api", "http://localhost:8080", "base URL of the sales-coach API")
		ownerID      = flag.String("owner", "", "owner id of the call")
		callID       = flag.String("call", "", "call id to follow")
		pushWait     = flag.Duration("push-wait", 45*time.Second, "silence tolerated on the event stream before polling")
		pollDelay    = flag.Duration("poll-delay", 2*time.Second, "first polling delay; doubles per attempt")
		pollAttempts = flag.Int("poll-attempts", 3, "polling attempts before giving up")
		logLevel     = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *ownerID == "" || *callID == "" {
		fmt.Fprintln(os.Stderr, "usage: watch -owner <owner-id> -call <call-id> [-api <url>]")
		os.Exit(2)
	}

	logger := logging.NewJSONLogger("watch", *logLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := statusclient.New(*apiURL, *ownerID, nil)
	watcher := watch.NewWatcher(client, client, watch.Config{
		PushWait:      *pushWait,
		PollBaseDelay: *pollDelay,
		PollAttempts:  *pollAttempts,
	}, logger)

	last, err := watcher.Watch(ctx, *callID, func(event domain.StatusEvent) {
		fmt.Printf("%s  %s", time.Now().Format(time.TimeOnly), event.Status)
		if event.Error != "" {
			fmt.Printf("  (%s)", event.Error)
		}
		fmt.Println()
	})
	switch {
	case errors.Is(err, watch.ErrClientTimeout):
		fmt.Fprintf(os.Stderr, "gave up waiting; the call may still be processing (last seen: %s)\n", last.Status)
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		os.Exit(130)
	case err != nil:
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		os.Exit(1)
	}

	if last.Status == domain.StatusFailed {
		fmt.Fprintf(os.Stderr, "call failed: %s\n", last.Error)
		os.Exit(1)
	}
}

// streamtest connects to a running bridge's WebSocket and prints state events.
// Usage: go run ./cmd/streamtest --url ws://localhost:8080/api/websocket
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/airvpn-bridge/internal/stream"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/api/websocket", "bridge websocket URL")
	verbose := flag.Bool("verbose", false, "print attributes and timestamps")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := stream.NewClient(stream.ClientConfig{URL: *url}, logger)
	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	err := client.Connect(dialCtx)
	dialCancel()
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("streaming events", "url", *url)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-client.Errors():
			logger.Error("stream error", "error", err)
			os.Exit(1)
		case ev, ok := <-client.Events():
			if !ok {
				logger.Info("stream closed by bridge")
				return
			}
			printEvent(os.Stdout, ev, *verbose)
		}
	}
}

func printEvent(w io.Writer, ev stream.Event, verbose bool) {
	ts := ev.Time.Local().Format("15:04:05")

	switch ev.Type {
	case stream.EventAvailability:
		state := "unavailable"
		if ev.Available != nil && *ev.Available {
			state = "available"
		}
		fmt.Fprintf(w, "[%s] %s\n", ts, state)

	default:
		fmt.Fprintf(w, "[%s] %s: %d states", ts, ev.Type, len(ev.States))
		if len(ev.Removed) > 0 {
			fmt.Fprintf(w, ", %d removed", len(ev.Removed))
		}
		fmt.Fprintln(w)

		for _, st := range ev.States {
			value := st.State
			if st.Unit != "" && st.Known {
				value += " " + st.Unit
			}
			fmt.Fprintf(w, "  %-50s %s\n", st.EntityID, value)
			if verbose {
				for k, v := range st.Attributes {
					fmt.Fprintf(w, "  %-50s   %s=%s\n", "", k, v)
				}
				fmt.Fprintf(w, "  %-50s   updated %s\n", "", st.UpdatedAt.Format(time.RFC3339))
			}
		}
		for _, id := range ev.Removed {
			fmt.Fprintf(w, "  %-50s (removed)\n", id)
		}
	}
}

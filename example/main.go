package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/corpuswatch"
)

func main() {
	// start mock backend (see mock_backend.go)
	go StartMockBackend(":9999")
	time.Sleep(100 * time.Millisecond)

	timit, err := corpuswatch.NewTarget("1",
		corpuswatch.WithDisplayName("TIMIT"),
		corpuswatch.WithLabels("lab", "phonetics"),
	)
	if err != nil {
		slog.Error("failed to create target", "error", err)
		os.Exit(1)
	}

	buckeye, _ := corpuswatch.NewTarget("2", corpuswatch.WithLabels("lab", "sociophonetics"))

	// refresh the large corpus less often (overrides global 5s)
	libri, _ := corpuswatch.NewTarget("3", corpuswatch.WithInterval(30*time.Second))

	w, err := corpuswatch.New(
		corpuswatch.WithBackend("http://localhost:9999"),
		corpuswatch.WithTargets(timit, buckeye, libri),
		corpuswatch.WithPollingInterval(5*time.Second),
		corpuswatch.WithPort(8080),
		corpuswatch.WithTitle("corpuswatch demo"),
		corpuswatch.WithStatusCallback(func(r corpuswatch.StatusResult) {
			if r.Error != nil {
				fmt.Printf("  %-12s %s (%v)\n", r.Name, r.Status, r.Error)
				return
			}
			fmt.Printf("  %-12s %s\n", r.Name, r.Status)
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  corpuswatch demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Corpora: timit, buckeye (not imported yet), librispeech (30s interval)")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		slog.Error("corpuswatch error", "error", err)
		os.Exit(1)
	}
}

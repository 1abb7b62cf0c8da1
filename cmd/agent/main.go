package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drawsync/drawsync/client"
	"github.com/drawsync/drawsync/internal/protocol"
	"github.com/drawsync/drawsync/internal/slogging"
)

// The agent is a headless collaborator: it joins a sync server, keeps an
// in-memory copy of the shared diagram, and can optionally make periodic
// edits to exercise the broadcast path from the command line.
func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "sync server WebSocket URL")
	reconnectDelay := flag.Duration("reconnect-delay", 2*time.Second, "base delay between reconnect attempts")
	maxAttempts := flag.Int("max-reconnect", 5, "maximum reconnect attempts before giving up")
	editInterval := flag.Duration("edit-interval", 0, "emit a synthetic node edit at this interval (0 disables)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	if err := slogging.Initialize(slogging.Config{
		Level:            slogging.ParseLogLevel(*logLevel),
		IsDev:            true,
		LogDir:           "logs",
		MaxAgeDays:       1,
		MaxSizeMB:        10,
		MaxBackups:       1,
		AlsoLogToConsole: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logger := slogging.Get()
	defer func() {
		_ = logger.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := client.NewManager(client.Options{
		ServerURL:            *serverURL,
		ReconnectDelay:       *reconnectDelay,
		MaxReconnectAttempts: *maxAttempts,
	})
	widget := client.NewMemoryWidget()
	bridge := client.NewBridge(widget, manager, client.DefaultDocument())
	bridge.Start()
	defer bridge.Stop()

	logger.Info("Agent %s connecting to %s", manager.ClientID(), *serverURL)
	if err := manager.Connect(ctx); err != nil {
		logger.Error("Failed to connect: %v", err)
		os.Exit(1)
	}
	defer manager.Disconnect()

	if *editInterval > 0 {
		go synthesizeEdits(ctx, widget, *editInterval)
	}

	<-ctx.Done()
	logger.Info("Agent shutting down")
}

// synthesizeEdits adds a fresh node to the widget on every tick. Each edit
// fires the widget's change handler, so the bridge publishes the updated
// document exactly as it would for a human edit.
func synthesizeEdits(ctx context.Context, widget *client.MemoryWidget, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			node := fmt.Sprintf(`{"id":"agent_node_%d_%d","offsetX":%d,"offsetY":%d,"width":120,"height":50,"annotations":[{"content":"Agent edit %d"}]}`,
				protocol.NowMillis(), seq, 100+(seq%8)*40, 600+(seq%5)*30, seq)
			widget.AddNode(json.RawMessage(node))
			slogging.Get().Debug("Agent emitted synthetic node edit %d", seq)
		}
	}
}
